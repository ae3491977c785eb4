package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndMessage(t *testing.T) {
	base := Wrap(CodeInternal, "failed to send", errors.New("disk full"))
	wrapped := fmt.Errorf("send: %w", base)

	assert.Equal(t, CodeInternal, CodeOf(wrapped))
	assert.Equal(t, "failed to send", Message(wrapped))
	assert.Equal(t, "failed to send: disk full", base.Error())

	plain := errors.New("pq: connection refused")
	assert.Equal(t, CodeUnknown, CodeOf(plain))
	assert.Equal(t, "internal server error", Message(plain))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeOf(InvalidArg("x"))))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeOf(AlreadyExists("x"))))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(CodeOf(Forbidden("x"))))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeOf(Unauthorized("x"))))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(CodeUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeUnknown))
}
