package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"blobstore/internal/blob"
)

// maxBodyBytes bounds request bodies; blobs are held fully in memory.
const maxBodyBytes = 32 << 20

// wireBlob is the JSON form of a blob. Contents travel as a UTF-8 string and
// absent fields are omitted.
type wireBlob struct {
	URI      string  `json:"uri,omitempty"`
	Location string  `json:"location,omitempty"`
	Contents *string `json:"contents,omitempty"`
	Length   *int    `json:"length,omitempty"`
}

func toWire(b blob.Blob) wireBlob {
	w := wireBlob{Location: b.Location, Length: b.Length}
	if b.Location != "" {
		w.URI = storePrefix + "/" + b.Location
	}
	if b.Contents != nil {
		s := string(b.Contents)
		w.Contents = &s
	}
	return w
}

func toWireList(bs []blob.Blob) []wireBlob {
	out := make([]wireBlob, 0, len(bs))
	for _, b := range bs {
		out = append(out, toWire(b))
	}
	return out
}

// decodeBlob reads a request body. Body-supplied uri, location and length are
// ignored; the location comes from the route and length is recomputed.
func decodeBlob(r *http.Request) (blob.Blob, error) {
	var w wireBlob
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return blob.Blob{}, blob.E(blob.KindInvalidArgument, "decode", "request body is required", nil)
		}
		return blob.Blob{}, blob.E(blob.KindInvalidArgument, "decode", "invalid blob body", err)
	}
	if w.Contents == nil {
		return blob.NewBlob("", nil), nil
	}
	return blob.NewBlob("", []byte(*w.Contents)), nil
}
