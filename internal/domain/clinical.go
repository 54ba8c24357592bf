package domain

import "time"

// Tracking carries the actor stamps and the nullable soft-delete timestamp
// shared by every soft-deletable entity.
type Tracking struct {
	CreatedBy uint       `gorm:"not null" json:"created_by"`
	UpdatedBy *uint      `json:"updated_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

func (t *Tracking) IsActive() bool { return t.DeletedAt == nil }

func (t *Tracking) Meta() *Tracking { return t }

type Patient struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	FirstName      string    `gorm:"size:128;not null" json:"first_name"`
	LastName       string    `gorm:"size:128;not null" json:"last_name"`
	DocumentNumber string    `gorm:"size:64;uniqueIndex;not null" json:"document_number"`
	BirthDate      time.Time `json:"birth_date"`
	Email          string    `gorm:"size:255" json:"email,omitempty"`
	Tracking
}

func (Patient) EntityName() string { return "Patient" }

type Exam struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	PatientID uint   `gorm:"index;not null" json:"patient_id"`
	TestType  string `gorm:"size:128;not null" json:"test_type"`
	Result    string `gorm:"type:text" json:"result,omitempty"`
	Tracking
}

func (Exam) EntityName() string      { return "Exam" }
func (e *Exam) RecordID() uint       { return e.ID }
func (e *Exam) OwnerPatientID() uint { return e.PatientID }

type Notification struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	PatientID uint   `gorm:"index;not null" json:"patient_id"`
	Channel   string `gorm:"size:32;not null" json:"channel"`
	Message   string `gorm:"type:text;not null" json:"message"`
	Tracking
}

func (Notification) EntityName() string      { return "Notification" }
func (n *Notification) RecordID() uint       { return n.ID }
func (n *Notification) OwnerPatientID() uint { return n.PatientID }

type Observation struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	PatientID uint   `gorm:"index;not null" json:"patient_id"`
	Note      string `gorm:"type:text;not null" json:"note"`
	Tracking
}

func (Observation) EntityName() string      { return "Observation" }
func (o *Observation) RecordID() uint       { return o.ID }
func (o *Observation) OwnerPatientID() uint { return o.PatientID }

type Treatment struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PatientID  uint   `gorm:"index;not null" json:"patient_id"`
	Medication string `gorm:"size:128;not null" json:"medication"`
	Dosage     string `gorm:"size:128" json:"dosage,omitempty"`
	Tracking
}

func (Treatment) EntityName() string      { return "Treatment" }
func (t *Treatment) RecordID() uint       { return t.ID }
func (t *Treatment) OwnerPatientID() uint { return t.PatientID }

// PatientRecord is implemented by the pointer types of every dependent family.
type PatientRecord interface {
	EntityName() string
	RecordID() uint
	OwnerPatientID() uint
	Meta() *Tracking
}

// DependentTables lists the tables whose rows cascade with a patient.
var DependentTables = []string{"exams", "notifications", "observations", "treatments"}
