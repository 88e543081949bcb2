package api

import (
	"mime"
	"net/http"
	"net/url"

	"github.com/ajg/form"
	"github.com/go-chi/render"
)

// decodeRequest fills v from a JSON body or from form values. Form values
// are matched on the `form` tag and converted to the field's type.
func decodeRequest(r *http.Request, v interface{}) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			return err
		}
		return decodeValues(r.Form, v)
	case "":
		if r.Body == nil || r.ContentLength == 0 {
			return decodeValues(r.URL.Query(), v)
		}
	}
	return render.DecodeJSON(r.Body, v)
}

func decodeValues(values url.Values, v interface{}) error {
	d := form.NewDecoder(nil)
	d.IgnoreUnknownKeys(true)
	return d.DecodeValues(v, values)
}
