// Package filter turns declarative sample filters into catalog query scopes.
package filter

import (
	"strings"
	"time"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/errdefs"
	"gorm.io/gorm"
)

// Params describes which samples to select. Every supplied field narrows the
// result (AND); TagFilter is a disjunction of tag conjunctions.
type Params struct {
	OwnerID           string `json:"owner_id,omitempty"`
	StorageInstanceID string `json:"storage_instance_id,omitempty"`
	Bucket            string `json:"bucket,omitempty"`
	Prefix            string `json:"prefix,omitempty"`

	// DateFrom and DateTo are calendar days; both are inclusive.
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	AnnotationStatus  models.AnnotationStatus `json:"annotation_status,omitempty"`
	AnnotationClasses []string                `json:"annotation_classes,omitempty"`
	ObjectCountMin    *int                    `json:"object_count_min,omitempty"`
	ObjectCountMax    *int                    `json:"object_count_max,omitempty"`

	// TagFilter [[A,B],[C]] selects (A AND B) OR C.
	TagFilter [][]string `json:"tag_filter,omitempty"`

	// TagsInclude requires every listed tag; TagsExclude rejects any listed tag.
	TagsInclude []string `json:"tags_include,omitempty"`
	TagsExclude []string `json:"tags_exclude,omitempty"`
}

// Validate rejects filters that cannot describe any meaningful selection.
func (p Params) Validate() error {
	if p.AnnotationStatus != "" && !p.AnnotationStatus.Valid() {
		return errdefs.Validation("unknown annotation status '%s'", p.AnnotationStatus)
	}
	if p.ObjectCountMin != nil && *p.ObjectCountMin < 0 {
		return errdefs.Validation("object_count_min must not be negative")
	}
	if p.ObjectCountMin != nil && p.ObjectCountMax != nil && *p.ObjectCountMin > *p.ObjectCountMax {
		return errdefs.Validation("object_count_min %d exceeds object_count_max %d", *p.ObjectCountMin, *p.ObjectCountMax)
	}
	if p.DateFrom != nil && p.DateTo != nil && p.DateFrom.After(*p.DateTo) {
		return errdefs.Validation("date_from is after date_to")
	}
	for i, group := range p.TagFilter {
		for _, id := range group {
			if strings.TrimSpace(id) == "" {
				return errdefs.Validation("tag_filter group %d contains an empty tag id", i)
			}
		}
	}
	return nil
}

// Query is the compiled form of Params. It carries no connection and can be
// applied to any sample query.
type Query struct {
	conditions []condition
}

type condition struct {
	sql  string
	args []any
}

// Build validates params and compiles them into a Query.
func Build(p Params) (*Query, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	q := &Query{}
	q.where("samples.status = ?", models.SampleActive)

	if p.OwnerID != "" {
		q.where("samples.owner_id = ?", p.OwnerID)
	}
	if p.StorageInstanceID != "" {
		q.where("samples.storage_instance_id = ?", p.StorageInstanceID)
	}
	if p.Bucket != "" {
		q.where("samples.bucket = ?", p.Bucket)
	}
	if p.Prefix != "" {
		q.where("samples.object_key LIKE ? ESCAPE '\\'", escapeLike(p.Prefix)+"%")
	}
	if p.DateFrom != nil {
		q.where("samples.created_at >= ?", startOfDay(*p.DateFrom))
	}
	if p.DateTo != nil {
		q.where("samples.created_at < ?", startOfDay(*p.DateTo).AddDate(0, 0, 1))
	}
	if p.AnnotationStatus != "" {
		q.where("samples.annotation_status = ?", p.AnnotationStatus)
	}

	if len(p.TagsInclude) > 0 {
		q.where(hasAllTags, dedupe(p.TagsInclude), len(dedupe(p.TagsInclude)))
	}
	if len(p.TagsExclude) > 0 {
		q.where("samples.id NOT IN (SELECT sample_id FROM sample_tags WHERE tag_id IN ?)", dedupe(p.TagsExclude))
	}

	q.tagFilter(p.TagFilter)

	if len(p.AnnotationClasses) > 0 {
		q.where("samples.id IN (SELECT sample_id FROM annotation_classes WHERE class_name IN ?)", dedupe(p.AnnotationClasses))
	}
	if p.ObjectCountMin != nil {
		q.where("samples.id IN (SELECT sample_id FROM annotations WHERE object_count >= ?)", *p.ObjectCountMin)
	}
	if p.ObjectCountMax != nil {
		q.where("samples.id IN (SELECT sample_id FROM annotations WHERE object_count <= ?)", *p.ObjectCountMax)
	}

	return q, nil
}

// hasAllTags matches samples carrying every tag of one group.
const hasAllTags = "samples.id IN (SELECT sample_id FROM sample_tags WHERE tag_id IN ? GROUP BY sample_id HAVING COUNT(DISTINCT tag_id) = ?)"

// tagFilter ORs one hasAllTags predicate per non-empty group. An empty group
// places no restriction on its own, so it makes the whole disjunction true.
func (q *Query) tagFilter(groups [][]string) {
	var clauses []string
	var args []any

	for _, group := range groups {
		ids := dedupe(group)
		if len(ids) == 0 {
			return
		}
		clauses = append(clauses, "("+hasAllTags+")")
		args = append(args, ids, len(ids))
	}

	if len(clauses) > 0 {
		q.where("("+strings.Join(clauses, " OR ")+")", args...)
	}
}

func (q *Query) where(sql string, args ...any) {
	q.conditions = append(q.conditions, condition{sql: sql, args: args})
}

// Scope returns the query as a gorm scope over the samples table.
func (q *Query) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range q.conditions {
			db = db.Where(c.sql, c.args...)
		}
		return db
	}
}

// String renders the conditions for logging.
func (q *Query) String() string {
	parts := make([]string, 0, len(q.conditions))
	for _, c := range q.conditions {
		parts = append(parts, c.sql)
	}
	return strings.Join(parts, " AND ")
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
