package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildPublicID(t *testing.T) {
	at := time.Unix(0, 42)

	require.Equal(t, "page-1-42", buildPublicID("page 1.png", at))
	require.Equal(t, "worksheet-42", buildPublicID("../.png", at))
	require.Equal(t, "Scan-07-42", buildPublicID("Scan_07.jpeg", at))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)

	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/grading/"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "grading", svc.folder)
}
