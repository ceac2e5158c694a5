package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/convert"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/importer"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/query"
	"aggregat4/linkbook/internal/service"
)

const maxImportBytes = 10 << 20

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      *errorBody  `json:"error,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type errorBody struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

type pagination struct {
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
	Limit      int    `json:"limit"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func failure(err error) envelope {
	return envelope{Error: &errorBody{Code: apperrors.CodeOf(err), Message: apperrors.MessageOf(err)}}
}

// handleError is echo's error handler: application errors keep their code, echo's own errors
// (unknown route, bad method, body too large) are translated.
func (controller *Controller) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := apperrors.CodeOf(err).HTTPStatus()
	body := failure(err)
	var he *echo.HTTPError
	if apperrors.As(err, &he) {
		status = he.Code
		body.Error.Code = codeForStatus(he.Code)
		body.Error.Message = http.StatusText(he.Code)
		if msg, isString := he.Message.(string); isString && msg != "" {
			body.Error.Message = msg
		}
	}
	if status >= http.StatusInternalServerError {
		controller.Log.Error("Request failed", logger.String("uri", c.Request().RequestURI), logger.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	if writeErr := c.JSON(status, body); writeErr != nil {
		controller.Log.Error("Writing error response failed", logger.Error(writeErr))
	}
}

func codeForStatus(status int) apperrors.Code {
	switch {
	case status == http.StatusNotFound:
		return apperrors.CodeNotFound
	case status == http.StatusUnauthorized:
		return apperrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return apperrors.CodeForbidden
	case status < http.StatusInternalServerError:
		return apperrors.CodeValidation
	default:
		return apperrors.CodeInternal
	}
}

func bindJSON(c echo.Context, target any) error {
	if err := c.Bind(target); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return nil
}

func listParams(c echo.Context) (query.Params, error) {
	p := query.Params{
		Search:    c.QueryParam("q"),
		Sort:      query.SortKey(c.QueryParam("sort")),
		Direction: query.Direction(c.QueryParam("dir")),
		Cursor:    c.QueryParam("cursor"),
	}
	if folder := c.QueryParam("folder"); folder != "" {
		p.Folder = &folder
	}
	for _, raw := range c.QueryParams()["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				p.Tags = append(p.Tags, tag)
			}
		}
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return p, apperrors.Validation("limit must be a positive number")
		}
		p.Limit = n
	}
	return p, nil
}

// notModified checks the conditional headers and sets the validators on the response. The ETag
// carries millisecond precision. Last-Modified only has whole seconds, so it is neither sent nor
// honoured until the second of the last write has passed.
func notModified(c echo.Context, lastModified, now time.Time) bool {
	etag := `W/"` + strconv.FormatInt(lastModified.UnixMilli(), 10) + `"`
	settled := !now.Before(lastModified.Truncate(time.Second).Add(time.Second))
	stamp := lastModified.UTC().Format(http.TimeFormat)

	req := c.Request()
	if match := req.Header.Get("If-None-Match"); match != "" {
		if match == etag {
			return true
		}
	} else if settled && req.Header.Get("If-Modified-Since") == stamp {
		return true
	}
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("ETag", etag)
	if settled {
		c.Response().Header().Set("Last-Modified", stamp)
	}
	return false
}

func (controller *Controller) listBookmarks(c echo.Context) error {
	userID := currentUser(c)
	lastModified, err := controller.Store.GetLastModifiedDate(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if !lastModified.IsZero() {
		if notModified(c, lastModified, controller.now()) {
			return c.NoContent(http.StatusNotModified)
		}
	}
	p, err := listParams(c)
	if err != nil {
		return err
	}
	page, err := controller.Bookmarks.List(c.Request().Context(), userID, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{
		Success:    true,
		Data:       page.Items,
		Pagination: &pagination{NextCursor: page.NextCursor, HasMore: page.HasMore, Limit: page.Limit},
	})
}

func (controller *Controller) getBookmark(c echo.Context) error {
	b, err := controller.Bookmarks.Get(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, b)
}

func (controller *Controller) addBookmark(c echo.Context) error {
	var input service.NewBookmark
	if err := bindJSON(c, &input); err != nil {
		return err
	}
	b, err := controller.Bookmarks.Add(c.Request().Context(), currentUser(c), input)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, b)
}

func (controller *Controller) updateBookmark(c echo.Context) error {
	var patch domain.BookmarkPatch
	if err := bindJSON(c, &patch); err != nil {
		return err
	}
	b, err := controller.Bookmarks.Update(c.Request().Context(), currentUser(c), c.Param("id"), patch)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, b)
}

func (controller *Controller) deleteBookmark(c echo.Context) error {
	if err := controller.Bookmarks.Delete(c.Request().Context(), currentUser(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c, http.StatusOK, map[string]string{"id": c.Param("id")})
}

func (controller *Controller) visitBookmark(c echo.Context) error {
	b, err := controller.Bookmarks.RecordVisit(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, b)
}

type batchAddRequest struct {
	Bookmarks []domain.Bookmark `json:"bookmarks"`
}

type batchResult struct {
	Count int               `json:"count"`
	Items []domain.Bookmark `json:"items"`
}

func (controller *Controller) batchAddBookmarks(c echo.Context) error {
	var req batchAddRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	created, err := controller.Bookmarks.BatchAdd(c.Request().Context(), currentUser(c), req.Bookmarks)
	result := batchResult{Count: len(created), Items: created}
	if err != nil {
		if len(created) == 0 {
			return err
		}
		// earlier chunks are committed, tell the client which
		body := failure(err)
		body.Data = result
		return c.JSON(apperrors.CodeOf(err).HTTPStatus(), body)
	}
	return ok(c, http.StatusCreated, result)
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (controller *Controller) batchDeleteBookmarks(c echo.Context) error {
	var req batchDeleteRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if _, err := controller.Bookmarks.BatchDelete(c.Request().Context(), currentUser(c), req.IDs); err != nil {
		return err
	}
	return ok(c, http.StatusOK, map[string]int{"count": len(req.IDs)})
}

func (controller *Controller) listTags(c echo.Context) error {
	tags, err := controller.Bookmarks.Tags(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, tags)
}

func (controller *Controller) listFolders(c echo.Context) error {
	folders, err := controller.Bookmarks.Folders(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, folders)
}

func (controller *Controller) getSettings(c echo.Context) error {
	settings, err := controller.Settings.Get(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, settings)
}

func (controller *Controller) updateSettings(c echo.Context) error {
	var patch domain.SettingsPatch
	if err := bindJSON(c, &patch); err != nil {
		return err
	}
	settings, err := controller.Settings.Update(c.Request().Context(), currentUser(c), patch)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, settings)
}

// importBookmarks accepts the file either as multipart field "file" or as the raw body. The
// format comes from the query or, for uploads, from the file name.
func (controller *Controller) importBookmarks(c echo.Context) error {
	var data []byte
	var err error
	format := c.QueryParam("format")
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return apperrors.Validation("file is required")
		}
		if format == "" {
			detected, err := importer.DetectFormat(fileHeader.Filename, "")
			if err != nil {
				return err
			}
			format = string(detected)
		}
		file, err := fileHeader.Open()
		if err != nil {
			return apperrors.Validation("cannot read uploaded file")
		}
		defer file.Close()
		if data, err = io.ReadAll(io.LimitReader(file, maxImportBytes)); err != nil {
			return apperrors.Validation("cannot read uploaded file")
		}
	} else if data, err = io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes)); err != nil {
		return apperrors.Validation("cannot read request body")
	}
	parsedFormat, err := convert.ParseFormat(format)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return apperrors.Validation("file is empty")
	}
	result, err := controller.Bookmarks.Import(c.Request().Context(), currentUser(c), parsedFormat, data)
	if err != nil {
		if result.Imported == 0 {
			return err
		}
		body := failure(err)
		body.Data = result
		return c.JSON(apperrors.CodeOf(err).HTTPStatus(), body)
	}
	return ok(c, http.StatusOK, result)
}

func (controller *Controller) exportBookmarks(c echo.Context) error {
	format := convert.FormatJSON
	if raw := c.QueryParam("format"); raw != "" {
		parsed, err := convert.ParseFormat(raw)
		if err != nil {
			return err
		}
		format = parsed
	}
	out, err := controller.Bookmarks.Export(c.Request().Context(), currentUser(c), format)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+format.FileName(time.Now())+`"`)
	return c.Blob(http.StatusOK, format.ContentType(), out)
}

func (controller *Controller) getMetadata(c echo.Context) error {
	refresh := c.QueryParam("refresh") == "true"
	md, err := controller.Bookmarks.Metadata(c.Request().Context(), c.QueryParam("url"), refresh)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, md)
}

func (controller *Controller) getStats(c echo.Context) error {
	stats, err := controller.Bookmarks.Stats(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, stats)
}
