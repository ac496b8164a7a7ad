package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

func readResponseBody(resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(resp.Body)
	if nil != err {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	return respBody, nil
}

func ReadResponseBody(resp *http.Response) ([]byte, error) {
	respBody, err := readResponseBody(resp)
	if nil != err {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected empty response body")
		}

		return nil, err
	}

	return respBody, nil
}

func ReadOptionalResponseBody(resp *http.Response) ([]byte, error) {
	respBody, err := ReadResponseBody(resp)
	if nil != err && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return respBody, nil
}
