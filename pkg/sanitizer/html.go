package sanitizer

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	safePolicy   *bluemonday.Policy
	initOnce     sync.Once
)

func initPolicies() {
	initOnce.Do(func() {
		// StrictPolicy strips ALL HTML, returns plain text
		strictPolicy = bluemonday.StrictPolicy()

		// SafePolicy allows basic formatting for user-generated content
		safePolicy = bluemonday.NewPolicy()
		safePolicy.AllowStandardURLs()
		safePolicy.AllowElements(
			"p", "br",
			"strong", "b", "em", "i",
			"ul", "ol", "li",
			"code", "pre", "blockquote",
		)
		safePolicy.AllowAttrs("href").OnElements("a")
		safePolicy.RequireNoFollowOnLinks(true)
	})
}

// SanitizeHTML allows safe formatting tags (p, a, strong, em, lists, code).
// Use for user-generated content that needs basic HTML formatting.
// Strips all dangerous elements and attributes including scripts, event handlers,
// and javascript: URLs.
func SanitizeHTML(s string) string {
	initPolicies()
	return safePolicy.Sanitize(s)
}

// SanitizeHTMLCustom applies a custom bluemonday policy.
// Returns input unchanged if policy is nil.
func SanitizeHTMLCustom(s string, policy *bluemonday.Policy) string {
	if policy == nil {
		return s
	}
	return policy.Sanitize(s)
}

// StripHTML removes all HTML, returning plain text. Use for fields that
// must never carry markup at all, such as request-intake free-text echoed
// back in an API response.
func StripHTML(s string) string {
	initPolicies()
	return strictPolicy.Sanitize(s)
}

// SanitizeStruct walks the exported string fields of the struct pointed to
// by v and sanitizes those tagged `sanitize:"html"` in place using
// SanitizeHTML. Non-string fields and untagged fields are left untouched.
func SanitizeStruct(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("sanitizer: SanitizeStruct requires a non-nil struct pointer")
	}

	elem := rv.Elem()
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("sanitize") != "html" {
			continue
		}
		fv := elem.Field(i)
		if !fv.CanSet() || fv.Kind() != reflect.String {
			continue
		}
		fv.SetString(SanitizeHTML(fv.String()))
	}
	return nil
}
