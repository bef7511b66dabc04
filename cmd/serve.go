package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/compoundpi/compoundpi/camera"
	"github.com/compoundpi/compoundpi/internal/env"
	"github.com/compoundpi/compoundpi/server"
	"github.com/compoundpi/compoundpi/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compoundpi server",
	Long: `Start the compoundpi server

Usage
	cpid serve

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		socket, err := transport.NewUDPSocket(transport.UDPOptions{
			Host: conf.BindHost,
			Port: conf.Port,
			Log:  log.Named("transport"),
		})
		if err != nil {
			return err
		}

		cam := camera.NewFake()

		handler := server.NewHandler(socket, cam, server.Config{
			RetryMin:    conf.RetryMin,
			RetryMax:    conf.RetryMax,
			IdleTimeout: conf.IdleTimeout,
		}, log.Named("server"))

		router := setupRouter(conf.DebugHTTP, log, handler)

		s := &http.Server{
			Addr:    net.JoinHostPort(conf.BindHost, strconv.Itoa(conf.HTTPPort)),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		go func() {
			if err := handler.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Protocol handler errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.String("network", conf.Network),
			zap.String("bindHost", conf.BindHost),
			zap.Int("port", conf.Port),
			zap.Int("httpPort", conf.HTTPPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := socket.Close(); err != nil {
			log.Error("UDP socket forced to shutdown", zap.Error(err))
		}

		if err := cam.Close(); err != nil {
			log.Error("Camera forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setupRouter(debugHTTP bool, log *zap.Logger, handler *server.Handler) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	r.GET("/debug/status", func(c *gin.Context) {
		settings := handler.Settings()

		body := []byte("{}")
		body, _ = sjson.SetBytes(body, "width", settings.Width)
		body, _ = sjson.SetBytes(body, "height", settings.Height)
		if settings.Framerate != nil {
			body, _ = sjson.SetBytes(body, "framerate", settings.Framerate.FloatString(4))
		}
		body, _ = sjson.SetBytes(body, "awbMode", settings.AWBMode)
		body, _ = sjson.SetBytes(body, "exposureMode", settings.ExposureMode)
		body, _ = sjson.SetBytes(body, "meteringMode", settings.MeteringMode)
		body, _ = sjson.SetBytes(body, "iso", settings.ISO)
		body, _ = sjson.SetBytes(body, "quality", settings.Quality)
		body, _ = sjson.SetBytes(body, "imageCount", handler.Store().Len())

		c.Data(http.StatusOK, "application/json", body)
	})

	r.GET("/debug/images", func(c *gin.Context) {
		images := handler.Store().All()

		body := []byte("[]")
		for i, img := range images {
			path := strconv.Itoa(i)
			body, _ = sjson.SetBytes(body, path+".index", i)
			body, _ = sjson.SetBytes(body, path+".timestamp", img.Timestamp)
			body, _ = sjson.SetBytes(body, path+".size", img.Size())
		}

		c.Data(http.StatusOK, "application/json", body)
	})

	r.GET("/debug/images/:index", func(c *gin.Context) {
		images := handler.Store().All()

		body := []byte("[]")
		for i, img := range images {
			path := strconv.Itoa(i)
			body, _ = sjson.SetBytes(body, path+".index", i)
			body, _ = sjson.SetBytes(body, path+".timestamp", img.Timestamp)
			body, _ = sjson.SetBytes(body, path+".size", img.Size())
		}

		entry := gjson.GetBytes(body, c.Param("index"))
		if !entry.Exists() {
			c.Status(http.StatusNotFound)
			return
		}

		c.Data(http.StatusOK, "application/json", []byte(entry.Raw))
	})

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
