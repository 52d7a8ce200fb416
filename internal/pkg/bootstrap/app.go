// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"rewardhub/internal/pkg/config"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/pkg/nacos"
)

const shutdownTimeout = 10 * time.Second

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// Nacos.ServerAddrs 为空时跳过服务注册
	Nacos config.NacosConfig
	// RegisterHandlers 允许服务注册自己的 HTTP 路由
	RegisterHandlers func(mux *http.ServeMux)
	// OnShutdown 在 HTTP 服务器关闭后按注册的逆序执行
	OnShutdown []func(ctx context.Context) error
}

// StartService 启动服务并阻塞，直到收到 SIGINT/SIGTERM 后优雅关停。
func StartService(info AppInfo) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, info)
}

// Run 与 StartService 相同，但由 ctx 控制退出。
func Run(ctx context.Context, info AppInfo) error {
	log := logger.Ctx(ctx)

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(mux)
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(info.Port))
	if err != nil {
		return errors.Wrapf(err, "listen on :%d", info.Port)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msgf("%s listening", info.ServiceName)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	deregister := func() {}
	if info.Nacos.ServerAddrs != "" {
		deregister, err = registerNacos(info)
		if err != nil {
			_ = server.Close()
			return err
		}
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			deregister()
			return errors.Wrap(err, "http server stopped")
		}
	}
	log.Info().Msgf("shutting down service %s", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	// 先从注册中心摘除，再停止接收请求
	deregister()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}
	for i := len(info.OnShutdown) - 1; i >= 0; i-- {
		if err := info.OnShutdown[i](shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown hook failed")
		}
	}
	log.Info().Msgf("service %s gracefully shut down", info.ServiceName)
	return nil
}

func registerNacos(info AppInfo) (func(), error) {
	client, err := nacos.NewNacosClient(info.Nacos.ServerAddrs, info.Nacos.Namespace, info.Nacos.Group)
	if err != nil {
		return nil, err
	}
	ip, err := GetOutboundIP()
	if err != nil {
		return nil, err
	}
	if err := client.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		return nil, err
	}
	return func() {
		if err := client.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Msg("error deregistering from nacos")
		}
	}, nil
}

// GetOutboundIP 返回本机访问外网时使用的 IP，UDP 拨号不会真正发包。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.Wrap(err, "resolve outbound ip")
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
