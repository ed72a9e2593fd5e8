package normalize

import "strings"

// normalizeText trims, NFC-normalizes and collapses internal whitespace
// runs. Casing is preserved: free text is reconciled as written.
func normalizeText(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed != s {
		transforms = append(transforms, TransformTextFormat)
	}
	return Result{Value: collapsed, Transforms: transforms}
}
