package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vidcat/vidcat-server/internal/blob"
	"github.com/vidcat/vidcat-server/internal/catalog"
)

// maxFieldBytes bounds multipart form-field values on chunk uploads.
const maxFieldBytes = 4096

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Get("/retrieve", retrieveHandler(cfg))
	r.Get("/search", searchHandler(cfg))
	r.Get("/delete", deleteHandler(cfg))
	r.Get("/query", queryHandler(cfg))
	r.Get("/breakdown", breakdownHandler(cfg))
	r.Get("/process", processHandler(cfg))
	r.Get("/commit", commitHandler(cfg))
	r.Post("/upload", uploadHandler(cfg))
	r.Get("/getToken", getTokenHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func retrieveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Repository.List(r.Context(), cfg.Pipeline.Partition(), 1000)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}
		if records == nil {
			records = []*catalog.Record{}
		}
		WriteJSON(w, http.StatusOK, records)
	}
}

func searchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		if filter == "" {
			WriteError(w, http.StatusBadRequest, "filter is required", "BAD_REQUEST")
			return
		}

		records, err := cfg.Pipeline.SearchVideos(r.Context(), filter)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if records == nil {
			records = []*catalog.Record{}
		}
		WriteJSON(w, http.StatusOK, records)
	}
}

// deleteHandler removes the committed video object. The catalogue record is
// intentionally left behind; record deletion is a separate concern not yet
// wired to this endpoint.
func deleteHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("videoId")
		if name == "" {
			WriteError(w, http.StatusBadRequest, "videoId is required", "BAD_REQUEST")
			return
		}

		rec, err := cfg.Repository.Get(r.Context(), cfg.Pipeline.Partition(), name)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
			return
		}

		err = cfg.Blobs.DeleteBlob(r.Context(), cfg.Pipeline.Container(), rec.ContentID+"/"+rec.Name)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		cfg.Logger.Info("video blob deleted", "name", name)
		writeOK(w)
	}
}

func queryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			WriteError(w, http.StatusBadRequest, "filename is required", "BAD_REQUEST")
			return
		}

		rec, err := cfg.Repository.Get(r.Context(), cfg.Pipeline.Partition(), filename)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		records := []*catalog.Record{}
		if rec != nil {
			records = append(records, rec)
		}
		WriteJSON(w, http.StatusOK, records)
	}
}

func breakdownHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guid := r.URL.Query().Get("guid")
		breakdownURL := r.URL.Query().Get("breakdownUrl")
		if guid == "" || breakdownURL == "" {
			WriteError(w, http.StatusBadRequest, "guid and breakdownUrl are required", "BAD_REQUEST")
			return
		}

		data, err := cfg.Blobs.GetBlob(r.Context(), cfg.Pipeline.Container(), guid+"/"+breakdownURL)
		if err != nil {
			var notFound *blob.NotFoundError
			if errors.As(err, &notFound) {
				WriteError(w, http.StatusNotFound, "breakdown not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// processHandler registers the catalogue record, acknowledges the client,
// and hands the submission and poll chain to the background. The client
// observes all later progress through the record's status field.
func processHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			WriteError(w, http.StatusBadRequest, "filename is required", "BAD_REQUEST")
			return
		}
		guid := r.URL.Query().Get("guid")
		if guid == "" {
			guid = catalog.DeriveContentID(filename)
		}

		if err := cfg.Pipeline.Register(r.Context(), filename, guid); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		writeOK(w)

		go func() {
			if err := cfg.Pipeline.Submit(context.Background(), filename, guid); err != nil {
				cfg.Logger.Error("index submission failed", "filename", filename, "error", err)
			}
		}()
	}
}

func commitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.URL.Query().Get("filename")
		guid := r.URL.Query().Get("guid")
		if filename == "" || guid == "" {
			WriteError(w, http.StatusBadRequest, "filename and guid are required", "BAD_REQUEST")
			return
		}

		if err := cfg.Pipeline.Commit(r.Context(), guid, filename); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		writeOK(w)
	}
}

// uploadHandler accepts one multipart chunk of an upload session. Form
// fields (filename, guid, chunk) are expected before the file part, which
// is streamed to the block store without buffering the whole chunk.
func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid multipart request", "BAD_REQUEST")
			return
		}

		// Ephemeral upload-session state, alive for this request only.
		var (
			filename   string
			contentID  string
			chunkIndex int
			received   bool
		)

		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				WriteError(w, http.StatusBadRequest, "malformed multipart request", "BAD_REQUEST")
				return
			}

			if part.FileName() == "" {
				value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
				part.Close()
				if err != nil {
					WriteError(w, http.StatusBadRequest, "malformed form field", "BAD_REQUEST")
					return
				}

				switch part.FormName() {
				case "filename":
					filename = strings.TrimSpace(string(value))
				case "guid":
					contentID = strings.TrimSpace(string(value))
				case "chunk":
					chunkIndex, err = strconv.Atoi(strings.TrimSpace(string(value)))
					if err != nil {
						WriteError(w, http.StatusBadRequest, "invalid chunk index", "BAD_REQUEST")
						return
					}
				}
				continue
			}

			receipt, err := cfg.Pipeline.ReceiveChunk(r.Context(), filename, contentID, chunkIndex, part)
			part.Close()
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
			contentID = receipt.ContentID
			received = true
		}

		if !received {
			WriteError(w, http.StatusBadRequest, "missing file part", "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, UploadResponse{
			StatusCode: http.StatusOK,
			Filename:   filename,
			GUID:       contentID,
		})
	}
}

func getTokenHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := cfg.Indexer.GetToken(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, token)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
