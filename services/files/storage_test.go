package filesvc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_SaveServeRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewStorage(fs, "/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Save(ctx, "Me.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, URLPrefix))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	exists, err := afero.Exists(fs, "/uploads/"+strings.TrimPrefix(ref, URLPrefix))
	require.NoError(t, err)
	assert.True(t, exists)

	srv := httptest.NewServer(http.StripPrefix(URLPrefix, s.Handler()))
	defer srv.Close()
	res, err := http.Get(srv.URL + ref)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "png-bytes", string(body))

	// no directory listing, no escaping the upload directory
	for _, p := range []string{URLPrefix, URLPrefix + ".", URLPrefix + "missing.png", URLPrefix + "..%2Fsecret.png"} {
		res, err := http.Get(srv.URL + p)
		require.NoError(t, err)
		_ = res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode, p)
	}

	require.NoError(t, s.Remove(ctx, ref))
	require.NoError(t, s.Remove(ctx, ref)) // already gone
	exists, _ = afero.Exists(fs, "/uploads/"+strings.TrimPrefix(ref, URLPrefix))
	assert.False(t, exists)
}

func TestStorage_Rejects(t *testing.T) {
	s, err := NewStorage(afero.NewMemMapFs(), "/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Save(ctx, "script.sh", strings.NewReader("#!/bin/sh"))
	assert.Error(t, err)

	for _, ref := range []string{"", "/etc/passwd", "/uploads/", "/uploads/../secret.png"} {
		assert.Equal(t, ErrInvalidRef, s.Remove(ctx, ref), ref)
	}
}
