package models

import "time"

// Subject is the closed set of study areas tracked by the learning engine.
type Subject string

const (
	SubjectMath    Subject = "Math"
	SubjectScience Subject = "Science"
	SubjectEnglish Subject = "English"
	SubjectGeneral Subject = "General"
)

// AllSubjects lists every valid subject in a stable order.
var AllSubjects = []Subject{SubjectMath, SubjectScience, SubjectEnglish, SubjectGeneral}

// ParseSubject maps arbitrary classifier output onto the closed subject set.
// Anything unrecognized falls back to General rather than failing: the
// classifier output is semi-structured text and cannot be trusted.
func ParseSubject(s string) Subject {
	switch Subject(s) {
	case SubjectMath, SubjectScience, SubjectEnglish, SubjectGeneral:
		return Subject(s)
	}
	return SubjectGeneral
}

// ConfidenceLevel is the categorical mastery label derived from a numeric
// confidence score. It is never set directly; see learning.ScoreToLevel.
type ConfidenceLevel string

const (
	ConfidenceWeak      ConfidenceLevel = "Weak"
	ConfidenceImproving ConfidenceLevel = "Improving"
	ConfidenceStrong    ConfidenceLevel = "Strong"
)

// ConceptCluster groups semantically similar messages for one user within one
// subject. The embedding is the first-seen representative vector, stored as
// raw little-endian float32 bytes and unit-normalized at write time.
//
// Confidence is always the deterministic bucketing of ConfidenceScore; the two
// fields are updated together by the learning package and never independently.
type ConceptCluster struct {
	ID              int64           `json:"-"`
	UserID          int64           `json:"-"`
	Subject         Subject         `json:"-"`
	Embedding       []byte          `json:"-"`
	Name            string          `json:"name"`
	ConfidenceScore float64         `json:"confidence_score"`
	Confidence      ConfidenceLevel `json:"confidence"`
	ConfidenceDelta float64         `json:"confidence_delta"`
	DeltaSince      time.Time       `json:"delta_since"`
	LastSeen        time.Time       `json:"last_seen"`
}

// SubjectCluster is the per-(user, subject) mastery aggregate. MeanScore keeps
// the raw mean so the next recompute can report a delta; LearningSkill is the
// label shown to the user.
type SubjectCluster struct {
	ID            int64           `json:"-"`
	UserID        int64           `json:"-"`
	Subject       Subject         `json:"subject"`
	LearningSkill ConfidenceLevel `json:"learning_skill"`
	MeanScore     float64         `json:"-"`
	LearningDelta float64         `json:"learning_delta"`
	DeltaSince    time.Time       `json:"delta_since"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// SignalKind tags a behavioral cue detected in message text.
type SignalKind string

const (
	SignalFollowUp       SignalKind = "follow_up"
	SignalSelfCorrection SignalKind = "self_correction"
	SignalCrossTopic     SignalKind = "cross_topic_transfer"
)

// InteractionSignal records one detected cue. Rows are append-only; MessageID
// is zero when the originating chat message is unknown.
type InteractionSignal struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	MessageID  int64      `json:"message_id"`
	Kind       SignalKind `json:"kind"`
	DetectedAt time.Time  `json:"detected_at"`
}

// LearningUpdate is the atomic write produced by one pipeline invocation.
// Cluster is inserted when its ID is zero and updated otherwise; Subject is
// upserted on (user_id, subject); Signals are appended. Storage implementations
// must apply the whole update in a single transaction.
type LearningUpdate struct {
	Cluster *ConceptCluster
	Subject *SubjectCluster
	Signals []*InteractionSignal
}
