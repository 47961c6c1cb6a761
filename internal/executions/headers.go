package executions

import (
	"encoding/base64"
	"strings"
)

// Разрешённые заголовки запроса и ответа, которые сохраняются в Execution.
var (
	RequestAllowList  = []string{"content-type", "agent", "content-length", "host"}
	ResponseAllowList = []string{"content-type", "content-length"}
)

// Заголовки, которые платформа передаёт функции.
const (
	HeaderTrigger       = "x-forge-trigger"
	HeaderUserID        = "x-forge-user-id"
	HeaderUserJWT       = "x-forge-user-jwt"
	HeaderCountryCode   = "x-forge-country-code"
	HeaderContinentCode = "x-forge-continent-code"
	HeaderContinentEU   = "x-forge-continent-eu"

	headerRealIP   = "x-real-ip"
	headerEncoding = "x-open-runtimes-encoding"
)

// FilterHeaders оставляет только заголовки из allow (без учёта регистра).
// Имена сохраняются в исходном виде.
func FilterHeaders(headers map[string]string, allow []string) map[string]string {
	out := make(map[string]string)
	for name, value := range headers {
		lower := strings.ToLower(name)
		for _, a := range allow {
			if lower == a {
				out[name] = value
				break
			}
		}
	}
	return out
}

// headerValue ищет заголовок без учёта регистра.
func headerValue(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// requestHeaders копирует входящие заголовки и добавляет платформенные.
func requestHeaders(in map[string]string, userID, jwt string, geo GeoInfo) map[string]string {
	out := make(map[string]string, len(in)+6)
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	out[HeaderTrigger] = "http"
	out[HeaderUserID] = userID
	out[HeaderUserJWT] = jwt
	out[HeaderCountryCode] = geo.CountryCode
	out[HeaderContinentCode] = geo.ContinentCode
	out[HeaderContinentEU] = "false"
	if geo.EU {
		out[HeaderContinentEU] = "true"
	}
	return out
}

// decodeBody декодирует тело ответа, если executor вернул его в base64.
func decodeBody(body string, headers map[string]string) []byte {
	if enc, ok := headerValue(headers, headerEncoding); ok && enc == "base64" {
		if decoded, err := base64.StdEncoding.DecodeString(body); err == nil {
			return decoded
		}
	}
	return []byte(body)
}
