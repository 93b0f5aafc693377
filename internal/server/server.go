package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"image/color"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/detection"
	"github.com/ironsheep/craft-text-demo/internal/imaging"
	"github.com/ironsheep/craft-text-demo/internal/logging"
	"github.com/ironsheep/craft-text-demo/internal/ocr"
	"github.com/ironsheep/craft-text-demo/internal/store"
)

// Title is the heading of the OCR form.
const Title = "STUDENT ID INFORMATION EXTRACTION"

// DefaultMaxUploadBytes bounds the size of an uploaded image.
const DefaultMaxUploadBytes = 20 << 20

//go:embed templates/*.html
var templatesFS embed.FS

// Config wires the server's collaborators. Recognizer, UploadDir and Flags
// are required.
type Config struct {
	Recognizer ocr.Recognizer

	// Detector, when set, also runs CRAFT on each upload and reports the
	// number of detected regions.
	Detector detection.Network

	// Records backs the records page. Writer stores words flagged
	// Correct. Either may be nil.
	Records store.RecordLister
	Writer  store.RecordWriter

	Flags *FlagLog

	// UploadDir receives uploads, annotated results and word sidecars.
	UploadDir string

	MaxUploadBytes int64

	// BoxColor is a colour name or hex string for the word boxes on the
	// result image. Defaults to yellow.
	BoxColor string

	Logger logrus.FieldLogger
}

// Server is the demo HTTP server.
type Server struct {
	recognizer ocr.Recognizer
	detector   detection.Network
	records    store.RecordLister
	writer     store.RecordWriter
	flags      *FlagLog

	uploadDir string
	maxUpload int64
	boxColor  color.RGBA
	cache     *imaging.ImageCache
	log       logrus.FieldLogger

	engine *gin.Engine
}

// New validates cfg and builds the router.
//
// Parameters:
//   - cfg: Collaborators and limits; Recognizer, Flags and UploadDir are required
//
// Returns:
//   - *Server: Ready to Run or to mount through Handler
//   - error: A missing collaborator, an invalid BoxColor or an upload
//     directory that cannot be created
func New(cfg Config) (*Server, error) {
	if cfg.Recognizer == nil {
		return nil, errors.New("recognizer is required")
	}
	if cfg.Flags == nil {
		return nil, errors.New("flag log is required")
	}
	if cfg.UploadDir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	boxColor := imaging.OCRColor
	if cfg.BoxColor != "" {
		c, err := imaging.ParseColor(cfg.BoxColor)
		if err != nil {
			return nil, fmt.Errorf("invalid box color: %w", err)
		}
		boxColor = c
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		recognizer: cfg.Recognizer,
		detector:   cfg.Detector,
		records:    cfg.Records,
		writer:     cfg.Writer,
		flags:      cfg.Flags,
		uploadDir:  cfg.UploadDir,
		maxUpload:  cfg.MaxUploadBytes,
		boxColor:   boxColor,
		cache:      imaging.NewImageCache(),
		log:        cfg.Logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.log))
	engine.MaxMultipartMemory = s.maxUpload
	engine.SetHTMLTemplate(tmpl)

	engine.GET("/", s.handleIndex)
	engine.POST("/ocr", s.handleOCR)
	engine.POST("/flag", s.handleFlag)
	engine.GET("/records", s.handleRecords)
	engine.GET("/results/:name", s.handleResult)

	api := engine.Group("/api")
	api.POST("/ocr", s.handleAPIOCR)
	api.POST("/flag", s.handleAPIFlag)
	api.GET("/records", s.handleAPIRecords)
	api.GET("/health", s.handleHealth)

	s.engine = engine
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Join(errors.New("failed to run HTTP server"), err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	}
}
