// Package models contains the resources returned by the storage service.
package models

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// File is a file stored in a bucket.
type File struct {
	ID          string   `json:"$id"`
	BucketID    string   `json:"bucketId"`
	CreatedAt   string   `json:"$createdAt"`
	UpdatedAt   string   `json:"$updatedAt"`
	Permissions []string `json:"$permissions"`
	Name        string   `json:"name"`
	Signature   string   `json:"signature"`
	MimeType    string   `json:"mimeType"`
	// SizeOriginal is the size of the file in bytes.
	SizeOriginal   int64 `json:"sizeOriginal"`
	ChunksTotal    int   `json:"chunksTotal"`
	ChunksUploaded int   `json:"chunksUploaded"`
}

// Complete reports whether every chunk of the file has been received.
func (f File) Complete() bool {
	return f.ChunksTotal > 0 && f.ChunksUploaded >= f.ChunksTotal
}

// FileFromMap decodes a file from a decoded JSON object.
func FileFromMap(m map[string]interface{}) (*File, error) {
	var file File
	if err := decode(m, &file); err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return &file, nil
}

func decode(m map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(m)
}
