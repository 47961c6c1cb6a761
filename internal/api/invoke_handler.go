package api

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/executions"
)

// maxInvokeBody — предел тела синхронного вызова.
const maxInvokeBody = 10 << 20

// HeaderJWT — JWT пользователя, от имени которого вызывается функция.
const HeaderJWT = "X-Forge-JWT"

// InvokeHTTP синхронно выполняет функцию и отдаёт её ответ.
// ANY /v1/tenants/{tenantID}/functions/{functionID}/http/*
func (h *Handler) InvokeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	functionID := chi.URLParam(r, "functionID")

	userID, jwt, err := h.identify(r, tenantID)
	if err != nil {
		Unauthorized(w, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInvokeBody))
	if err != nil {
		BadRequest(w, "request body too large")
		return
	}

	path := "/" + chi.URLParam(r, "*")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	res, err := h.invoker.Invoke(r.Context(), executions.Invocation{
		TenantID:   tenantID,
		FunctionID: functionID,
		Trigger:    domain.TriggerHTTP,
		Inline:     true,
		UserID:     userID,
		JWT:        jwt,
		Data:       string(body),
		Path:       path,
		Method:     r.Method,
		Headers:    flattenHeaders(r),
	})
	if HandleDomainError(w, reqLogger(r), err) {
		return
	}

	for name, value := range res.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("X-Forge-Execution-Id", res.Execution.ID)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(res.StatusCode)
	w.Write(res.Body)
}

// identify возвращает пользователя из JWT заголовка. Без заголовка вызов анонимный.
func (h *Handler) identify(r *http.Request, tenantID string) (userID, jwt string, err error) {
	jwt = r.Header.Get(HeaderJWT)
	if jwt == "" || h.tokens == nil {
		return "", "", nil
	}
	claims, err := h.tokens.Parse(jwt)
	if err != nil {
		return "", "", err
	}
	if claims.TenantID != tenantID {
		return "", "", errors.New("token issued for another tenant")
	}
	return claims.Subject, jwt, nil
}

// flattenHeaders берёт первое значение каждого заголовка. Host и x-real-ip
// добавляются из запроса, если клиент их не передал.
func flattenHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+2)
	for name, values := range r.Header {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	delete(out, strings.ToLower(HeaderJWT))
	out["host"] = r.Host
	if _, ok := out["x-real-ip"]; !ok {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			out["x-real-ip"] = host
		}
	}
	return out
}
