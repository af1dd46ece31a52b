package richtext

import (
	"net/url"
	"strings"
)

// Placeholder tokens that question exports embed in href/src values.
const (
	TokenFileBase     = "$IMS-CC-FILEBASE$"
	TokenWiki         = "$WIKI_REFERENCE$"
	TokenObject       = "$CANVAS_OBJECT_REFERENCE$"
	TokenCourseObject = "$CANVAS_COURSE_REFERENCE$"
	TokenPluginFile   = "@@PLUGINFILE@@"
)

// token family names stored in File.Meta["token"]
const (
	familyNone         = ""
	familyFileBase     = "filebase"
	familyWiki         = "wiki"
	familyExternalTool = "external_tool"
	familyQuiz         = "quiz"
	familyObject       = "object"
	familyPluginFile   = "pluginfile"
	familyInline       = "inline"
)

// ReferenceResolver supplies jump targets for quiz object references. The
// question store implements it; nil falls back to "#quiz-ID".
type ReferenceResolver interface {
	QuizTarget(id string) (string, bool)
}

func isLocalFamily(f string) bool {
	return f == familyNone || f == familyFileBase || f == familyPluginFile
}

// classifyLocator returns the file key for a locator and the token family
// it belongs to. File-like families decode to a rooted path so references
// to the same resource share one File.
func classifyLocator(loc string) (key, family string) {
	switch {
	case strings.HasPrefix(loc, TokenPluginFile):
		return rootedPath(strings.TrimPrefix(loc, TokenPluginFile)), familyPluginFile
	case strings.HasPrefix(loc, TokenFileBase):
		return rootedPath(strings.TrimPrefix(loc, TokenFileBase)), familyFileBase
	case strings.HasPrefix(loc, TokenWiki):
		return loc, familyWiki
	case strings.HasPrefix(loc, TokenObject), strings.HasPrefix(loc, TokenCourseObject):
		rest := trimObjectToken(loc)
		switch {
		case strings.HasPrefix(rest, "/external_tools/"):
			return loc, familyExternalTool
		case strings.HasPrefix(rest, "/quizzes/"), strings.HasPrefix(rest, "/assessments/"):
			return loc, familyQuiz
		}
		return loc, familyObject
	}
	return loc, familyNone
}

// rewriteLocator turns a tokenized locator into the normalized path scheme.
// Values without a token come back unchanged.
func rewriteLocator(loc string, refs ReferenceResolver) string {
	key, fam := classifyLocator(loc)
	switch fam {
	case familyPluginFile, familyFileBase:
		return escapePath(key)
	case familyWiki:
		rest := strings.TrimPrefix(loc, TokenWiki)
		rest = strings.TrimPrefix(rest, "/pages")
		return "/wiki" + ensureRooted(stripQuery(rest))
	case familyExternalTool:
		rest := strings.TrimPrefix(trimObjectToken(loc), "/external_tools/")
		if i := strings.Index(rest, "?"); i >= 0 {
			if q, err := url.ParseQuery(rest[i+1:]); err == nil && q.Get("url") != "" {
				return q.Get("url")
			}
			rest = rest[:i]
		}
		return "/external_tools/" + rest
	case familyQuiz:
		rest := trimObjectToken(loc)
		rest = strings.TrimPrefix(rest, "/quizzes/")
		rest = strings.TrimPrefix(rest, "/assessments/")
		id := stripQuery(rest)
		if refs != nil {
			if t, ok := refs.QuizTarget(id); ok {
				return t
			}
		}
		return "#quiz-" + id
	case familyObject:
		return stripQuery(trimObjectToken(loc))
	}
	return loc
}

func trimObjectToken(loc string) string {
	if strings.HasPrefix(loc, TokenObject) {
		return strings.TrimPrefix(loc, TokenObject)
	}
	return strings.TrimPrefix(loc, TokenCourseObject)
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

func ensureRooted(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// rootedPath decodes percent escapes and drops any query.
func rootedPath(p string) string {
	p = stripQuery(p)
	if u, err := url.PathUnescape(p); err == nil {
		p = u
	}
	return ensureRooted(p)
}

// escapePath percent-encodes each element of a rooted path.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// isExternalURL reports locators that never name a bank resource.
func isExternalURL(loc string) bool {
	if loc == "" || strings.HasPrefix(loc, "#") {
		return true
	}
	if strings.HasPrefix(loc, "//") {
		return true
	}
	if i := strings.Index(loc, ":"); i > 0 {
		scheme := strings.ToLower(loc[:i])
		switch scheme {
		case "http", "https", "mailto", "ftp", "tel", "javascript":
			return true
		}
	}
	return false
}
