package storage

import (
	"bytes"
)

// TransformFunc is a caller-supplied encryption or decryption hook. The
// facade runs it at the point data crosses the process boundary and keeps no
// reference to it after the call returns. A nil TransformFunc means "no
// transform".
type TransformFunc func([]byte) ([]byte, error)

// ApplyDecrypt runs decrypt over raw bytes read from a backend. The raw
// buffer is owned by the facade, so it is handed to decrypt as is.
func ApplyDecrypt(decrypt TransformFunc, path string, raw []byte) ([]byte, error) {
	if decrypt == nil {
		return raw, nil
	}
	out, err := decrypt(raw)
	if err != nil {
		return nil, &TransformError{Op: "decrypt", Path: path, Err: err}
	}
	return out, nil
}

// ApplyEncrypt runs encrypt over a private copy of data so the caller's
// buffer is never touched, even by a transform that works in place.
func ApplyEncrypt(encrypt TransformFunc, path string, data []byte) ([]byte, error) {
	if encrypt == nil {
		return data, nil
	}
	out, err := encrypt(bytes.Clone(data))
	if err != nil {
		return nil, &TransformError{Op: "encrypt", Path: path, Err: err}
	}
	return out, nil
}
