package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "menus"})
	require.ErrorContains(t, err, "client")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "plain", path: "re12/2025-03-04.html", want: "re12/2025-03-04.html"},
		{name: "trims slashes", path: "/snapshots/re12/a.html/", want: "snapshots/re12/a.html"},
		{name: "cleans", path: "snapshots//re12/./a.html", want: "snapshots/re12/a.html"},
		{name: "empty", path: "  ", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := objectName(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
