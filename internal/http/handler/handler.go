package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/repository"
)

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pageFromQuery(r *http.Request) repository.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return repository.PageRequest{Page: page, PageSize: size}
}
