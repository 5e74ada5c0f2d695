package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewManager_Defaults(t *testing.T) {
	mgr := NewManager(ManagerConfig{})

	assert.Equal(t, "logs", mgr.baseConfig.BaseLogDir)
	assert.Equal(t, "info", mgr.baseConfig.Level)
	assert.Equal(t, "json", mgr.baseConfig.Encoding)
}

func TestManager_GetLogger_Cached(t *testing.T) {
	mgr := NewManager(ManagerConfig{EnableConsole: false})

	l1 := mgr.GetLogger("realtime")
	l2 := mgr.GetLogger("realtime")
	assert.Same(t, l1, l2)

	l3 := mgr.GetLogger("connection")
	assert.NotSame(t, l1, l3)
}

func TestManager_FileOutput(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(ManagerConfig{
		BaseLogDir:    dir,
		EnableConsole: false,
		EnableFile:    true,
	})

	l := mgr.GetLogger("realtime")
	l.Info("connection ready", zap.String("state", "connected"))
	mgr.CloseAll()

	assert.FileExists(t, filepath.Join(dir, "realtime", "realtime.log"))
}

func TestCtxZapLogger_With(t *testing.T) {
	mgr := NewManager(ManagerConfig{EnableConsole: false})

	base := mgr.GetLogger("realtime")
	child := base.With(zap.String("topic", "messages"))
	assert.NotSame(t, base, child)
	assert.Equal(t, base.module, child.module)
}

func TestManagerConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultManagerConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid level", func(t *testing.T) {
		cfg := DefaultManagerConfig()
		cfg.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid encoding", func(t *testing.T) {
		cfg := DefaultManagerConfig()
		cfg.Encoding = "xml"
		assert.Error(t, cfg.Validate())
	})
}
