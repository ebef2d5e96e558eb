package bot

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	codeMissingChat     = "MISSING_CHAT"
	codeSendFailed      = "SEND_FAILED"
	codeDownloadFailed  = "DOWNLOAD_FAILED"
	codeDecodeFailed    = "DECODE_FAILED"
	codeEncodeFailed    = "ENCODE_FAILED"
	codeMissingPhoto    = "MISSING_PHOTO"
	codeFileUnavailable = "FILE_UNAVAILABLE"
)

func badInput(message string, textCode string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(textCode)
}

func operationFailed(source error, message string, textCode string) error {
	return goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithTextCode(textCode)
}
