package loadgen

import "time"

// Config holds configuration for the labeling load test
type Config struct {
	BaseURL    string        // Base URL of the service
	Annotators int           // Number of synthetic annotators
	NumTasks   int           // Number of tasks to seed
	Categories string        // Comma-separated category options per task
	Bounty     float64       // Bounty per task (0 uses the server default)
	Timeout    time.Duration // HTTP request timeout
	LogFile    string        // Log file for test output
	Verbose    bool          // Enable verbose logging
}

// Task mirrors the task wire shape.
type Task struct {
	ID            string   `json:"id"`
	ImageRef      string   `json:"image_ref"`
	Options       []string `json:"options"`
	FinalLabel    *string  `json:"final_label"`
	ReviewStatus  string   `json:"review_status"`
	Bounty        float64  `json:"bounty"`
	AssignedCount int      `json:"assigned_count"`
	Status        string   `json:"status"`
}

// UserStats mirrors the per-annotator stats wire shape.
type UserStats struct {
	Accuracy       float64 `json:"accuracy"`
	PendingBalance float64 `json:"pending_balance"`
	TotalAnnotated int     `json:"total_annotated"`
	CorrectCount   int     `json:"correct_count"`
}

// UnpaidEntry mirrors one row of the unpaid report.
type UnpaidEntry struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}

// PayrollResult mirrors the payroll response.
type PayrollResult struct {
	TotalPaid float64 `json:"total_paid"`
}

// User mirrors the onboarding response.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Stats holds load test statistics
type Stats struct {
	TasksSeeded        int
	AnnotatorsCreated  int
	TasksPulled        int
	LabelsSubmitted    int
	SubmitConflicts    int
	SubmitFailed       int
	ConflictsResolved  int
	FirstPayrollTotal  float64
	SecondPayrollTotal float64
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
