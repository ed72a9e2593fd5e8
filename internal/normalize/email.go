package normalize

import "strings"

func normalizeEmail(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	lower := strings.ToLower(s)
	if lower != s {
		transforms = append(transforms, TransformEmailFormat)
	}

	at := strings.IndexByte(lower, '@')
	if at <= 0 || at != strings.LastIndexByte(lower, '@') || at == len(lower)-1 {
		return hardFail(FailNotAnEmail, "not an email address")
	}
	if strings.ContainsAny(lower, " \t") {
		return hardFail(FailNotAnEmail, "email address contains whitespace")
	}

	domain := lower[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return plausibleFail(lower, FailMissingTLD, "email domain has no top-level domain", transforms)
	}
	return Result{Value: lower, Transforms: transforms}
}
