package recognition

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// Recent remembers the latest identification seen on each subject's live
// stream, so a mark request without an image can use it.
type Recent struct {
	cache *cache.Cache
}

// NewRecent keeps entries for ttl.
func NewRecent(ttl time.Duration) *Recent {
	return &Recent{cache: cache.New(ttl, 2*ttl)}
}

// Remember stores result for the subject, replacing any earlier one.
func (r *Recent) Remember(subjectID string, result domain.IdentificationResult) {
	r.cache.SetDefault(subjectID, result)
}

// Latest returns the most recent identification for the subject, if any
// and not yet expired.
func (r *Recent) Latest(subjectID string) (domain.IdentificationResult, bool) {
	v, ok := r.cache.Get(subjectID)
	if !ok {
		return domain.IdentificationResult{}, false
	}
	return v.(domain.IdentificationResult), true
}

// Forget drops the subject's entry, used once it has been consumed.
func (r *Recent) Forget(subjectID string) {
	r.cache.Delete(subjectID)
}
