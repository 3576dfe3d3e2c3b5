package singleton

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCheckAndLock_PortAvailable 测试端口可用时获得 listener
func TestCheckAndLock_PortAvailable(t *testing.T) {
	// 使用随机可用端口
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := listener.Addr().String()
	listener.Close()

	result, err := CheckAndLock(port)
	require.NoError(t, err)
	require.NotNil(t, result)
	defer result.Close()
}

// TestIsInstanceRunning 测试已有实例健康检查
func TestIsInstanceRunning(t *testing.T) {
	t.Run("实例正常运行", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		_, port, err := net.SplitHostPort(server.URL[7:])
		require.NoError(t, err)

		assert.True(t, isInstanceRunning(":"+port))
	})

	t.Run("实例不存在", func(t *testing.T) {
		assert.False(t, isInstanceRunning(":99999"))
	})

	t.Run("实例返回非200状态码", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, port, err := net.SplitHostPort(server.URL[7:])
		require.NoError(t, err)

		assert.False(t, isInstanceRunning(":"+port))
	})
}
