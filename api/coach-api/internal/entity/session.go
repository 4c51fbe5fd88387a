package internal_entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coaching session status constants.
const (
	SessionStatusRecording = "recording" // Capture pipeline running
	SessionStatusCompleted = "completed" // Stopped and finalized
	SessionStatusFailed    = "failed"    // Ended by a fatal capture error
)

// CoachingSession is one recording session's backend record. Identifier is
// the client-generated correlation string attached to every uploaded segment;
// it is distinct from the primary key and never reused across sessions.
type CoachingSession struct {
	Id                 uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	Identifier         string    `json:"identifier" gorm:"column:identifier;type:varchar(120);not null;uniqueIndex"`
	UserId             string    `json:"userId" gorm:"column:user_id;type:varchar(64);not null;index"`
	UserEmail          string    `json:"userEmail" gorm:"column:user_email;type:varchar(200);not null;default:''"`
	Status             string    `json:"status" gorm:"column:status;type:varchar(20);not null;default:recording"`
	SegmentCount       int       `json:"segmentCount" gorm:"column:segment_count;type:int;not null;default:0"`
	AttendeeCount      int       `json:"attendeeCount" gorm:"column:attendee_count;type:int;not null;default:0"`
	CompanyDescription string    `json:"companyDescription" gorm:"column:company_description;type:text;not null;default:''"`
	MeetingObjective   string    `json:"meetingObjective" gorm:"column:meeting_objective;type:text;not null;default:''"`
	StartedAt          time.Time `json:"startedAt" gorm:"column:started_at;type:timestamp;not null"`
	EndedAt            time.Time `json:"endedAt" gorm:"column:ended_at;type:timestamp;default:null"`
	CreatedDate        time.Time `json:"createdDate" gorm:"type:timestamp;not null;<-:create"`
	UpdatedDate        time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`
}

func (CoachingSession) TableName() string {
	return "coaching_sessions"
}

func (s *CoachingSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.CreatedDate.IsZero() {
		s.CreatedDate = time.Now()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = s.CreatedDate
	}
	return nil
}

// ConnectivitySummary aggregates the network probe's samples for one session.
type ConnectivitySummary struct {
	Id                uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	SessionIdentifier string    `json:"sessionIdentifier" gorm:"column:session_identifier;type:varchar(120);not null;index"`
	AverageScore      float64   `json:"averageScore" gorm:"column:average_score;type:decimal(4,2);not null;default:0"`
	MinScore          int       `json:"minScore" gorm:"column:min_score;type:int;not null;default:0"`
	MaxScore          int       `json:"maxScore" gorm:"column:max_score;type:int;not null;default:0"`
	SampleCount       int       `json:"sampleCount" gorm:"column:sample_count;type:int;not null;default:0"`
	EffectiveType     string    `json:"effectiveType" gorm:"column:effective_type;type:varchar(20);not null;default:''"`
	CreatedDate       time.Time `json:"createdDate" gorm:"type:timestamp;not null;<-:create"`
}

func (ConnectivitySummary) TableName() string {
	return "connectivity_summaries"
}

func (s *ConnectivitySummary) BeforeCreate(tx *gorm.DB) (err error) {
	if s.CreatedDate.IsZero() {
		s.CreatedDate = time.Now()
	}
	return nil
}

// Coaching message types — the closed enumeration the analysis backend emits.
const (
	MessageTypePraise     = "praise"
	MessageTypeWarning    = "warning"
	MessageTypeSuggestion = "suggestion"
	MessageTypeObjection  = "objection"
	MessageTypePacing     = "pacing"
)

// IsValidMessageType reports whether t belongs to the known enumeration.
func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypePraise, MessageTypeWarning, MessageTypeSuggestion,
		MessageTypeObjection, MessageTypePacing:
		return true
	}
	return false
}

// CoachingMessage is one AI coaching row received over the realtime feed.
// Rows arrive out-of-band relative to segment uploads; the agent only
// triggers their generation and renders what shows up.
type CoachingMessage struct {
	Id                uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	Identifier        string    `json:"identifier" gorm:"column:identifier;type:varchar(36);not null;uniqueIndex"`
	UserId            string    `json:"userId" gorm:"column:user_id;type:varchar(64);not null;index"`
	SessionIdentifier string    `json:"sessionIdentifier" gorm:"column:session_identifier;type:varchar(120);not null;index"`
	Message           string    `json:"message" gorm:"column:message;type:text;not null"`
	MessageType       string    `json:"messageType" gorm:"column:message_type;type:varchar(20);not null"`
	Confidence        float64   `json:"confidence" gorm:"column:confidence;type:decimal(4,3);not null;default:0"`
	CreatedDate       time.Time `json:"createdDate" gorm:"type:timestamp;not null;<-:create"`
}

func (CoachingMessage) TableName() string {
	return "coaching_messages"
}

func (m *CoachingMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.Identifier == "" {
		m.Identifier = uuid.New().String()
	}
	if m.CreatedDate.IsZero() {
		m.CreatedDate = time.Now()
	}
	return nil
}
