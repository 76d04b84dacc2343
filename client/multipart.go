package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/appwrite/sdk-for-go/upload"
	"github.com/hashicorp/go-retryablehttp"
)

type formField struct {
	key   string
	value string
}

// formFields flattens a param: lists become repeated "key[]" fields, nil is dropped.
func formFields(key string, v interface{}) []formField {
	switch value := v.(type) {
	case nil:
		return nil
	case []string:
		fields := make([]formField, 0, len(value))
		for _, item := range value {
			fields = append(fields, formField{key: key + "[]", value: item})
		}
		return fields
	case []interface{}:
		fields := make([]formField, 0, len(value))
		for _, item := range value {
			fields = append(fields, formField{key: key + "[]", value: formatScalar(item)})
		}
		return fields
	default:
		return []formField{{key: key, value: formatScalar(value)}}
	}
}

func formatScalar(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(call upload.Call) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	keys := make([]string, 0, len(call.Params))
	for k := range call.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, field := range formFields(k, call.Params[k]) {
			if err := writer.WriteField(field.key, field.value); err != nil {
				return nil, "", fmt.Errorf("write %s: %w", field.key, err)
			}
		}
	}

	mimeType := call.Payload.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(call.FileParam), quoteEscaper.Replace(call.Payload.FileName)))
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(call.Payload.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body.Bytes(), writer.FormDataContentType(), nil
}

// Do sends a multipart/form-data request with the params and the payload as file part.
// It implements upload.Transport.
func (c *Client) Do(ctx context.Context, call upload.Call) (upload.Result, error) {
	body, contentType, err := encodeMultipart(call)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, call.Method, c.endpoint+call.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.applyHeaders(req, call.Headers)
	// The boundary is only known here.
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))

	result, err := c.do(c.uploadClient, req, call.Method, call.Path)
	if err != nil {
		return nil, err
	}

	return upload.Result(result), nil
}
