package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_CreatesDirectoryAndWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")

	f, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.SetOutput(f)
	logger.WithField("kind", "sector").Info("hierarchy fetched")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hierarchy fetched"`)
	require.Contains(t, string(b), `"kind":"sector"`)
}

func TestConsoleLogger_Level(t *testing.T) {
	logger := ConsoleLogger(logrus.WarnLevel)
	require.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
