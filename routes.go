package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/services"
	"refcheck/storage"
)

const (
	maxImportBytes = 10 << 20
	maxListLimit   = 1000
)

// app bündelt die Abhängigkeiten der HTTP-Handler.
type app struct {
	cfg       *config.Config
	repo      *storage.Repository
	engine    *services.VerificationEngine
	importer  *services.ImportService
	exporter  *services.ExportService
	cards     *services.CardService
	formatter *services.CitationFormatter
	log       *zap.Logger
}

// respondError bildet Fehler auf HTTP-Status ab. validationStatus erlaubt 422 dort,
// wo ein syntaktisch gültiger Request an einem unbrauchbaren Inhalt scheitert.
func respondError(c *gin.Context, log *zap.Logger, err error, validationStatus int) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(validationStatus, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, services.ErrWorkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
	case errors.Is(err, services.ErrVerificationInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "verification already in progress"})
	case errors.Is(err, storage.ErrDuplicateDOI):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func setupOpsRoutes(router *gin.Engine, a *app) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := a.repo.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			a.log.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func setupWorkRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/works")

	// POST - CSL-JSON importieren
	rg.POST("/import", func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}
		report, err := a.importer.Import(c.Request.Context(), body)
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	// POST - PDF hochladen (multipart "file" oder roher application/pdf-Body)
	rg.POST("/upload-pdf", func(c *gin.Context) {
		filename, data, err := readPDF(c, a.cfg.PDFMaxBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		w, err := a.importer.ImportPDF(c.Request.Context(), filename, data)
		if err != nil {
			respondError(c, a.log, err, http.StatusUnprocessableEntity)
			return
		}
		a.log.Info("Work created from PDF", zap.String("work_id", w.ID), zap.String("filename", filename))
		c.JSON(http.StatusCreated, w)
	})

	// GET - Werke, neueste zuerst
	rg.GET("", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxListLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 1000"})
				return
			}
			limit = n
		}
		works, err := a.repo.ListWorks(c.Request.Context(), limit)
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, works)
	})

	rg.GET("/:id", func(c *gin.Context) {
		w, err := a.repo.GetWork(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, w)
	})

	// POST - Verifikationslauf starten (synchron)
	rg.POST("/:id/verify", func(c *gin.Context) {
		id := c.Param("id")
		report, err := a.engine.Verify(c.Request.Context(), id)
		if err != nil {
			respondError(c, a.log, err, http.StatusUnprocessableEntity)
			return
		}
		a.log.Info("Verification completed",
			zap.String("work_id", id),
			zap.Int("checks", len(report.Checks)),
			zap.Bool("score_updated", report.ScoreUpdated))
		c.JSON(http.StatusOK, report)
	})

	// GET - Check-Historie, älteste zuerst
	rg.GET("/:id/checks", func(c *gin.Context) {
		id := c.Param("id")
		if _, err := a.repo.GetWork(c.Request.Context(), id); err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		checks, err := a.repo.ListChecks(c.Request.Context(), id)
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, checks)
	})

	rg.GET("/:id/cite", func(c *gin.Context) {
		style, err := services.ParseStyle(c.DefaultQuery("format", string(services.StyleAPA)))
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		w, err := a.repo.GetWork(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		citation, err := a.formatter.Format(w, style)
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		resp := gin.H{
			"work_id":   w.ID,
			"format":    style,
			"citation":  citation,
			"retracted": w.Retracted,
		}
		// Fließtextverweis; IEEE nur mit ?number=n
		number := 0
		if raw := c.Query("number"); raw != "" {
			if number, err = strconv.Atoi(raw); err != nil || number < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "number must be a positive integer", "field": "number"})
				return
			}
		}
		if style != services.StyleIEEE || number > 0 {
			inText, err := a.formatter.InText(w, style, c.Query("page"), number)
			if err != nil {
				respondError(c, a.log, err, http.StatusBadRequest)
				return
			}
			resp["in_text"] = inText
		}
		c.JSON(http.StatusOK, resp)
	})
}

func setupCardRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/works/:id")

	rg.GET("/cards", func(c *gin.Context) {
		cards, err := a.cards.ListCards(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, cards)
	})

	rg.POST("/cards", func(c *gin.Context) {
		var in services.CardInput
		if err := c.ShouldBindJSON(&in); err != nil {
			a.log.Debug("Invalid request body for claim card", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		card, err := a.cards.CreateCard(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusCreated, card)
	})

	rg.GET("/reading-score", func(c *gin.Context) {
		rs, err := a.cards.ReadingScore(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, rs)
	})
}

func setupExportRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/export")

	rg.POST("/bibliography", func(c *gin.Context) {
		var request struct {
			WorkIDs []string `json:"work_ids"`
			Format  string   `json:"format"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if request.Format == "" {
			request.Format = string(services.StyleAPA)
		}
		style, err := services.ParseStyle(request.Format)
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		bib, err := a.exporter.Export(c.Request.Context(), request.WorkIDs, style)
		if err != nil {
			respondError(c, a.log, err, http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"format":       bib.Format,
			"bibliography": bib.Text,
			"count":        len(bib.Entries),
			"warnings":     bib.Warnings,
		})
	})
}

// readPDF liest entweder das Multipart-Feld "file" oder einen rohen PDF-Body.
func readPDF(c *gin.Context, maxBytes int64) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", nil, errors.New("multipart field 'file' is required")
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, errors.New("could not open uploaded file")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, errors.New("could not read uploaded file")
		}
		return fh.Filename, data, nil
	}

	if ct := c.ContentType(); ct != "application/pdf" && ct != "application/octet-stream" {
		return "", nil, errors.New("expected multipart/form-data or application/pdf")
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", nil, errors.New("could not read request body (too large?)")
	}
	filename := c.Query("filename")
	if filename == "" {
		filename = "upload.pdf"
	}
	return filename, data, nil
}
