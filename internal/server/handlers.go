package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
	"github.com/ironsheep/craft-text-demo/internal/imaging"
	"github.com/ironsheep/craft-text-demo/internal/ocr"
)

const resultSuffix = "_result.jpg"

var allowedTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/webp",
}

var resultName = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}_result\.jpg$`)

// Analysis is the outcome of one OCR request.
type Analysis struct {
	ImageID   string             `json:"image_id"`
	Image     *imaging.ImageInfo `json:"image"`
	Languages []string           `json:"languages"`
	Records   []ocr.Record       `json:"records"`

	// DetectedBoxes is the CRAFT region count, set only when a detector
	// is configured and succeeded.
	DetectedBoxes *int `json:"detected_boxes,omitempty"`

	ResultURL string `json:"result_url"`
}

// sidecar is saved as <id>.json next to each upload.
type sidecar struct {
	Image     string       `json:"image"`
	Languages []string     `json:"languages"`
	Records   []ocr.Record `json:"records"`
}

type languageOption struct {
	Code    string
	Checked bool
}

type pageData struct {
	Title     string
	Languages []languageOption
	Labels    []string
	Analysis  *Analysis
	Chart     template.URL
	Error     string
	Notice    string
}

// httpError carries the status a handler should answer with.
type httpError struct {
	status int
	err    error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func statusOf(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.status
	}
	var langErr *ocr.UnsupportedLanguageError
	if errors.As(err, &langErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) page(langs []string) pageData {
	if len(langs) == 0 {
		langs = []string{ocr.DefaultLanguage}
	}
	options := make([]languageOption, 0, len(ocr.Languages))
	for _, code := range ocr.Languages {
		options = append(options, languageOption{Code: code, Checked: slices.Contains(langs, code)})
	}
	return pageData{
		Title:     Title,
		Languages: options,
		Labels:    Labels,
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.page(nil))
}

func (s *Server) handleOCR(c *gin.Context) {
	a, err := s.runOCR(c)
	data := s.page(c.PostFormArray("lang"))
	if err != nil {
		c.Error(err)
		data.Error = err.Error()
		c.HTML(statusOf(err), "index.html", data)
		return
	}

	data.Analysis = a
	if url, err := chartDataURL(a.Records); err == nil {
		data.Chart = url
	} else if !errors.Is(err, ErrNoRecords) {
		s.log.WithError(err).Warn("Failed to render confidence chart")
	}
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) handleAPIOCR(c *gin.Context) {
	a, err := s.runOCR(c)
	if err != nil {
		c.Error(err)
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

// runOCR handles both a fresh upload in "image" and a rerun of an earlier
// upload named by "image_id".
func (s *Server) runOCR(c *gin.Context) (*Analysis, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)

	langs := c.PostFormArray("lang")
	if len(langs) == 0 {
		langs = []string{ocr.DefaultLanguage}
	}
	if _, err := ocr.TesseractLanguages(langs); err != nil {
		return nil, err
	}

	var path string
	if id := c.PostForm("image_id"); id != "" {
		sc, err := s.loadSidecar(id)
		if err != nil {
			return nil, err
		}
		path = filepath.Join(s.uploadDir, sc.Image)
	} else {
		header, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, &httpError{http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.maxUpload)}
			}
			return nil, &httpError{http.StatusBadRequest, fmt.Errorf("image upload is required: %w", err)}
		}
		if path, err = s.saveUpload(header); err != nil {
			return nil, err
		}
	}

	return s.analyze(c.Request.Context(), path, langs)
}

func (s *Server) saveUpload(header *multipart.FileHeader) (string, error) {
	if header.Size > s.maxUpload {
		return "", &httpError{http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.maxUpload)}
	}
	f, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}

	mtype := mimetype.Detect(data)
	if !slices.ContainsFunc(allowedTypes, mtype.Is) {
		return "", &httpError{http.StatusUnsupportedMediaType, fmt.Errorf("unsupported file type %s", mtype.String())}
	}

	path := filepath.Join(s.uploadDir, uuid.NewString()+mtype.Extension())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

func (s *Server) analyze(ctx context.Context, path string, langs []string) (*Analysis, error) {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	log := s.log.WithField("image", id)

	// The decoded image is only shared between the steps of this request.
	defer s.cache.Evict(path)

	info, err := imaging.LoadImageInfo(s.cache, path)
	if err != nil {
		return nil, &httpError{http.StatusBadRequest, err}
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, &httpError{http.StatusBadRequest, err}
	}

	records, err := s.recognizer.Recognize(ctx, img, langs)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	if records == nil {
		records = []ocr.Record{}
	}

	a := &Analysis{
		ImageID:   id,
		Image:     info,
		Languages: langs,
		Records:   records,
		ResultURL: "/results/" + id + resultSuffix,
	}

	if s.detector != nil {
		res, err := s.detector.Detect(ctx, img)
		if err != nil {
			log.WithError(err).Warn("Text detection failed")
		} else {
			n := len(res.Boxes)
			a.DetectedBoxes = &n
		}
	}

	boxes := make([]geometry.Quad, len(records))
	for i, r := range records {
		boxes[i] = r.Box
	}
	annotated := imaging.DrawBoxes(img, boxes, s.boxColor, 2, log)
	imaging.DrawIndexLabels(annotated, boxes, color.RGBA{0, 0, 0, 255}, s.boxColor)
	if err := imaging.Save(annotated, filepath.Join(s.uploadDir, id+resultSuffix)); err != nil {
		return nil, fmt.Errorf("failed to save result image: %w", err)
	}

	data, err := json.Marshal(sidecar{Image: filepath.Base(path), Languages: langs, Records: records})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.uploadDir, id+".json"), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save OCR records: %w", err)
	}

	log.WithField("words", len(records)).Info("OCR finished")
	return a, nil
}

// resultPath returns the annotated image of upload id, or "" when it is
// gone.
func (s *Server) resultPath(id string) string {
	path := filepath.Join(s.uploadDir, id+resultSuffix)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// loadSidecar reads the words saved for upload id.
func (s *Server) loadSidecar(id string) (*sidecar, error) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return nil, &httpError{http.StatusBadRequest, fmt.Errorf("invalid image id %q", id)}
	}

	data, err := os.ReadFile(filepath.Join(s.uploadDir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &httpError{http.StatusNotFound, fmt.Errorf("unknown image id %q", id)}
	}
	if err != nil {
		return nil, err
	}

	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("corrupt records for %s: %w", id, err)
	}
	sc.Image = filepath.Base(sc.Image)
	return &sc, nil
}

func (s *Server) flag(ctx context.Context, id string, langs []string, label string) (*FlagEntry, error) {
	if !ValidLabel(label) {
		return nil, &httpError{http.StatusBadRequest, fmt.Errorf("label must be one of %s", strings.Join(Labels, ", "))}
	}
	sc, err := s.loadSidecar(id)
	if err != nil {
		return nil, err
	}
	if len(langs) == 0 {
		langs = sc.Languages
	}

	entry, err := s.flags.Append(FlagRequest{
		ImagePath:  filepath.Join(s.uploadDir, sc.Image),
		ResultPath: s.resultPath(id),
		Languages:  langs,
		Label:      label,
		Records:    sc.Records,
	})
	if err != nil {
		return nil, err
	}

	if label == LabelCorrect && s.writer != nil {
		if err := s.writer.InsertRecords(ctx, sc.Image, langs, sc.Records); err != nil {
			return entry, fmt.Errorf("flag saved but storing records failed: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{"image": id, "label": label, "flag": entry.ID}).Info("Result flagged")
	return entry, nil
}

func (s *Server) handleFlag(c *gin.Context) {
	langs := c.PostFormArray("lang")
	label := c.PostForm("label")

	_, err := s.flag(c.Request.Context(), c.PostForm("image_id"), langs, label)
	data := s.page(langs)
	if err != nil {
		c.Error(err)
		data.Error = err.Error()
		c.HTML(statusOf(err), "index.html", data)
		return
	}
	data.Notice = "Flagged as " + label
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) handleAPIFlag(c *gin.Context) {
	entry, err := s.flag(c.Request.Context(), c.PostForm("image_id"), c.PostFormArray("lang"), c.PostForm("label"))
	if err != nil {
		c.Error(err)
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleRecords(c *gin.Context) {
	if s.records == nil {
		c.HTML(http.StatusServiceUnavailable, "records.html", gin.H{"Error": "records store is not configured"})
		return
	}
	records, err := s.records.ListRecords(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.HTML(http.StatusInternalServerError, "records.html", gin.H{"Error": err.Error()})
		return
	}
	c.HTML(http.StatusOK, "records.html", gin.H{"Records": records})
}

func (s *Server) handleAPIRecords(c *gin.Context) {
	if s.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "records store is not configured"})
		return
	}
	records, err := s.records.ListRecords(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleResult(c *gin.Context) {
	name := c.Param("name")
	if !resultName.MatchString(name) {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(filepath.Join(s.uploadDir, name))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ocr":      ocr.GetInfo(),
		"detector":      s.detector != nil,
		"records":       s.records != nil,
		"cached_images": s.cache.Len(),
	})
}
