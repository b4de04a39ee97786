// objects.go — обработчики операций с объектами бакета.
// Листинг, загрузка, скачивание, удаление и выпуск presigned-ссылок.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/arturkryukov/bucketgate/internal/api/errors"
	"github.com/arturkryukov/bucketgate/internal/api/middleware"
	"github.com/arturkryukov/bucketgate/internal/credential"
	"github.com/arturkryukov/bucketgate/internal/service"
)

// objectItem — объект в ответе листинга.
type objectItem struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag,omitempty"`
}

// objectListResponse — ответ листинга по префиксу.
type objectListResponse struct {
	Prefix    string       `json:"prefix"`
	Objects   []objectItem `json:"objects"`
	Folders   []string     `json:"folders"`
	Truncated bool         `json:"truncated"`
}

// uploadObjectResponse — ответ на загрузку объекта.
type uploadObjectResponse struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// deleteObjectRequest — тело запроса на удаление объекта.
type deleteObjectRequest struct {
	Key string `json:"key"`
}

// presignRequest — тело запроса на выпуск ссылки скачивания.
// ExpiresIn — срок действия в секундах, 0 — значение по умолчанию.
type presignRequest struct {
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// presignResponse — ответ с presigned-ссылкой.
type presignResponse struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ListObjects обрабатывает GET /api/v1/objects.
// Параметр prefix задаёт «каталог» листинга.
func (h *APIHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	listing, err := h.storage.List(r.Context(), prefix)
	if err != nil {
		h.storageError(w, r, "list", err)
		return
	}

	resp := objectListResponse{
		Prefix:    listing.Prefix,
		Objects:   make([]objectItem, 0, len(listing.Objects)),
		Folders:   listing.Folders,
		Truncated: listing.Truncated,
	}
	if resp.Folders == nil {
		resp.Folders = []string{}
	}
	for _, obj := range listing.Objects {
		resp.Objects = append(resp.Objects, objectItem{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// UploadObject обрабатывает POST /api/v1/objects.
// Multipart form: file (обязательно), key (опционально, по умолчанию
// имя файла из заголовка части).
func (h *APIHandler) UploadObject(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFromContext(r.Context())

	// Парсим multipart form (буфер в памяти, крупные файлы уходят на диск)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	key := strings.TrimSpace(r.FormValue("key"))
	if key == "" {
		key = header.Filename
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.storage.Upload(r.Context(), actor, key, header.Size, contentType, file); err != nil {
		h.storageError(w, r, "upload", err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadObjectResponse{
		Key:  strings.TrimSpace(key),
		Size: header.Size,
	})
}

// DeleteObject обрабатывает DELETE /api/v1/objects.
// Ключ передаётся в теле: объектные ключи содержат «/», в path-параметре
// им не место.
func (h *APIHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFromContext(r.Context())

	var req deleteObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	if err := h.storage.Delete(r.Context(), actor, req.Key); err != nil {
		h.storageError(w, r, "delete", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PresignObject обрабатывает POST /api/v1/objects/presign.
// Выпускает ограниченную по времени ссылку на скачивание объекта.
func (h *APIHandler) PresignObject(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFromContext(r.Context())

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.ExpiresIn < 0 {
		apierrors.ValidationError(w, "Параметр expiresIn не может быть отрицательным")
		return
	}

	signedURL, expiresAt, err := h.storage.Presign(r.Context(), actor, req.Key, time.Duration(req.ExpiresIn)*time.Second)
	if err != nil {
		h.storageError(w, r, "presign", err)
		return
	}

	writeJSON(w, http.StatusOK, presignResponse{
		URL:       signedURL,
		Key:       strings.TrimSpace(req.Key),
		ExpiresAt: expiresAt,
	})
}

// DownloadObject обрабатывает GET /api/v1/objects/download.
// Проксирует содержимое объекта потоково, без буферизации в памяти.
func (h *APIHandler) DownloadObject(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFromContext(r.Context())
	key := r.URL.Query().Get("key")

	content, err := h.storage.Download(r.Context(), actor, key)
	if err != nil {
		h.storageError(w, r, "download", err)
		return
	}
	defer content.Body.Close()

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if content.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(content.Key)))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content.Body); err != nil {
		// Заголовки уже отправлены, не можем вернуть ошибку клиенту
		h.logger.Error("Ошибка передачи содержимого объекта", "key", content.Key, "error", err)
	}
}

// storageError переводит ошибку операции с хранилищем в HTTP-ответ.
func (h *APIHandler) storageError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidObjectKey):
		apierrors.ValidationError(w, service.ErrInvalidObjectKey.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Объект не найден")
	case errors.Is(err, credential.ErrUpstreamTimeout):
		apierrors.UpstreamTimeout(w, "Хранилище не ответило вовремя")
	case errors.Is(err, credential.ErrProvisioning):
		apierrors.CredentialProvisioning(w, "Не удалось выпустить учётные данные хранилища")
	default:
		h.logger.Error("Ошибка операции с хранилищем",
			"operation", op,
			"principal", middleware.IdentifierFromContext(r.Context()),
			"error", err,
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
