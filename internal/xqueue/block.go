package xqueue

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Block is the problem a submission answers.
type Block struct {
	// CourseID is a course key such as course-v1:MITx+6.002x+2024_T1.
	CourseID string `json:"course_id"`
	// ItemID is a usage key such as block-v1:MITx+6.002x+2024_T1+type@problem+block@p1.
	ItemID   string  `json:"item_id"`
	MaxScore float64 `json:"max_score"`
	// AllowEmpty permits an empty student response.
	AllowEmpty bool `json:"allow_empty"`
}

// Org returns the organization part of the course key.
func (b *Block) Org() string {
	org, _, _ := splitCourseKey(b.CourseID)
	return org
}

// ItemType returns the block type named in the usage key.
func (b *Block) ItemType() string {
	if m := typePattern.FindStringSubmatch(b.ItemID); m != nil {
		return m[1]
	}
	return ""
}

// Course returns the course number part of the course key.
func (b *Block) Course() string {
	_, course, _ := splitCourseKey(b.CourseID)
	return course
}

// splitCourseKey handles both course-v1:org+course+run and the legacy
// org/course/run form.
func splitCourseKey(key string) (org, course, run string) {
	var parts []string
	if rest, ok := strings.CutPrefix(key, "course-v1:"); ok {
		parts = strings.SplitN(rest, "+", 3)
	} else {
		parts = strings.SplitN(key, "/", 3)
	}
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

// UsageKey builds the block-v1 usage key of a block in a course.
func UsageKey(courseID, itemType, blockID string) string {
	org, course, run := splitCourseKey(courseID)
	return fmt.Sprintf("block-v1:%s+%s+%s+type@%s+block@%s", org, course, run, itemType, blockID)
}

// DefaultQueueName composes "{org}-{course}" with every whitespace rune
// folded to an underscore.
func DefaultQueueName(b *Block) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, b.Org()+"-"+b.Course())
}

// CallbackURLFor returns the address an external grader posts its score to.
func CallbackURLFor(queueBase string, b *Block, studentID string) string {
	return fmt.Sprintf("%s/courses/%s/xqueue/%s/%s/score_update",
		strings.TrimRight(queueBase, "/"),
		url.PathEscape(b.CourseID),
		url.PathEscape(studentID),
		url.PathEscape(b.ItemID),
	)
}

var (
	coursePattern   = regexp.MustCompile(`(course-v1:[^/]+)`)
	blockPattern    = regexp.MustCompile(`(block-v1:[^/]+)`)
	typePattern     = regexp.MustCompile(`type@([^+]+)`)
	callbackPattern = regexp.MustCompile(`/courses/([^/]+)/xqueue/([^/]+)/([^/]+)/score_update/?$`)
)

// CallbackTarget is the identity recovered from a callback URL.
type CallbackTarget struct {
	CourseID  string
	StudentID string
	ItemID    string
	ItemType  string
}

// ParseCallbackURL recovers (course_id, student_id, item_id, item_type) from
// a URL produced by CallbackURLFor.
func ParseCallbackURL(raw string) (CallbackTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return CallbackTarget{}, &ValidationError{Field: "lms_callback_url", Reason: fmt.Sprintf("invalid callback URL %q", raw)}
	}
	m := callbackPattern.FindStringSubmatch(u.EscapedPath())
	if m == nil {
		return CallbackTarget{}, &ValidationError{Field: "lms_callback_url", Reason: fmt.Sprintf("callback URL %q is not a score_update address", raw)}
	}
	segs := make([]string, 3)
	for i, s := range m[1:] {
		if segs[i], err = url.PathUnescape(s); err != nil {
			return CallbackTarget{}, &ValidationError{Field: "lms_callback_url", Reason: fmt.Sprintf("invalid callback URL %q", raw)}
		}
	}
	t := CallbackTarget{CourseID: segs[0], StudentID: segs[1], ItemID: segs[2]}
	if cm := coursePattern.FindStringSubmatch(t.CourseID); cm != nil {
		t.CourseID = cm[1]
	}
	if bm := blockPattern.FindStringSubmatch(t.ItemID); bm != nil {
		t.ItemID = bm[1]
	}
	if tm := typePattern.FindStringSubmatch(t.ItemID); tm != nil {
		t.ItemType = tm[1]
	}
	if t.CourseID == "" || t.ItemID == "" || t.ItemType == "" {
		return CallbackTarget{}, &ValidationError{Field: "lms_callback_url", Reason: fmt.Sprintf("callback URL %q does not name a course, item and item type", raw)}
	}
	return t, nil
}
