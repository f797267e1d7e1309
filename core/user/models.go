package user

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolms/backend/core"
)

// Role is the discriminator of a User: it selects which role info may be attached to its Profile.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

var (
	AllRoles         = []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}
	ProvisionedRoles = []Role{RoleTeacher, RoleStudent, RoleParent}

	roleTitles = map[Role]string{
		RoleAdmin:   "Admin",
		RoleTeacher: "Teacher",
		RoleStudent: "Student",
		RoleParent:  "Parent",
	}
)

func (r Role) Valid() bool {
	_, ok := roleTitles[r]
	return ok
}

func (r Role) Title() string { return roleTitles[r] }

// IsProvisioned reports whether accounts of this role are created by an admin with a temporary password.
func (r Role) IsProvisioned() bool {
	for _, pr := range ProvisionedRoles {
		if r == pr {
			return true
		}
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(core.CleanString(s, true /* lower */))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Profile holds the attributes common to every role, plus the role info matching User.Role.
type Profile struct {
	Name         string     `json:"name" bson:"name" validate:"required"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty" bson:"date_of_birth,omitempty"`
	Gender       Gender     `json:"gender,omitempty" bson:"gender,omitempty" validate:"omitempty,oneof=Male Female Other"`
	Phone        string     `json:"phone,omitempty" bson:"phone,omitempty"`
	Address      string     `json:"address,omitempty" bson:"address,omitempty"`
	ProfileImage string     `json:"profileImage,omitempty" bson:"profile_image,omitempty"`

	// role info: at most the one matching User.Role is set
	AdminInfo   *AdminInfo   `json:"adminInfo,omitempty" bson:"admin_info,omitempty"`
	TeacherInfo *TeacherInfo `json:"teacherInfo,omitempty" bson:"teacher_info,omitempty"`
	StudentInfo *StudentInfo `json:"studentInfo,omitempty" bson:"student_info,omitempty"`
	ParentInfo  *ParentInfo  `json:"parentInfo,omitempty" bson:"parent_info,omitempty"`
}

type AdminInfo struct {
	Title      string `json:"title,omitempty" bson:"title,omitempty"`
	Department string `json:"department,omitempty" bson:"department,omitempty"`
}

type TeacherInfo struct {
	EmployeeID        string       `json:"employeeId,omitempty" bson:"employee_id,omitempty"`
	Specialization    string       `json:"specialization,omitempty" bson:"specialization,omitempty"`
	Subjects          []string     `json:"subjects,omitempty" bson:"subjects,omitempty"`
	Classes           []string     `json:"classes,omitempty" bson:"classes,omitempty"`
	Qualifications    []string     `json:"qualifications,omitempty" bson:"qualifications,omitempty"`
	HireDate          *time.Time   `json:"hireDate,omitempty" bson:"hire_date,omitempty"`
	EmploymentHistory []Employment `json:"employmentHistory,omitempty" bson:"employment_history,omitempty"`
}

type Employment struct {
	Institution string     `json:"institution" bson:"institution"`
	Position    string     `json:"position,omitempty" bson:"position,omitempty"`
	From        *time.Time `json:"from,omitempty" bson:"from,omitempty"`
	To          *time.Time `json:"to,omitempty" bson:"to,omitempty"`
}

type StudentInfo struct {
	StudentID                 string               `json:"studentId" bson:"student_id" validate:"required"`
	Class                     string               `json:"class,omitempty" bson:"class,omitempty"`
	Section                   string               `json:"section,omitempty" bson:"section,omitempty"`
	RollNumber                string               `json:"rollNumber,omitempty" bson:"roll_number,omitempty"`
	Subjects                  []string             `json:"subjects,omitempty" bson:"subjects,omitempty"`
	AcademicYear              string               `json:"academicYear,omitempty" bson:"academic_year,omitempty"`
	Grades                    []GradeSummary       `json:"grades,omitempty" bson:"grades,omitempty"`
	AttendanceRecord          []AttendanceSummary  `json:"attendanceRecord,omitempty" bson:"attendance_record,omitempty"`
	Guardian                  *Guardian            `json:"guardian,omitempty" bson:"guardian,omitempty"`
	MedicalConditions         []string             `json:"medicalConditions,omitempty" bson:"medical_conditions,omitempty"`
	EnrollmentDate            *time.Time           `json:"enrollmentDate,omitempty" bson:"enrollment_date,omitempty"`
	ExtracurricularActivities []string             `json:"extracurricularActivities,omitempty" bson:"extracurricular_activities,omitempty"`
	DisciplinaryRecords       []DisciplinaryRecord `json:"disciplinaryRecords,omitempty" bson:"disciplinary_records,omitempty"`
	Transportation            *Transportation      `json:"transportationDetails,omitempty" bson:"transportation,omitempty"`
}

type GradeSummary struct {
	Subject string `json:"subject" bson:"subject"`
	Grade   string `json:"grade" bson:"grade"`
}

type AttendanceSummary struct {
	Date   time.Time `json:"date" bson:"date"`
	Status string    `json:"status" bson:"status"`
}

type Guardian struct {
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty"`
	Email string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
}

type DisciplinaryRecord struct {
	Date     time.Time `json:"date" bson:"date"`
	Incident string    `json:"incident" bson:"incident"`
}

type Transportation struct {
	BusNumber   string `json:"busNumber,omitempty" bson:"bus_number,omitempty"`
	PickupTime  string `json:"pickupTime,omitempty" bson:"pickup_time,omitempty"`
	DropoffTime string `json:"dropoffTime,omitempty" bson:"dropoff_time,omitempty"`
}

type ParentInfo struct {
	Occupation string   `json:"occupation,omitempty" bson:"occupation,omitempty"`
	Children   []string `json:"children,omitempty" bson:"children,omitempty"` // student user IDs
}

// ResetToken is an active password reset window. Only the SHA-256 of the emailed token is kept.
type ResetToken struct {
	Hash      string
	ExpiresAt time.Time // UTC
}

type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Role         Role        `json:"role"`
	PasswordHash []byte      `json:"-"`
	Profile      Profile     `json:"profile"`
	ResetToken   *ResetToken `json:"-"`
	CreatedAt    time.Time   `json:"createdAt"`           // UTC
	UpdatedAt    time.Time   `json:"updatedAt"`           // UTC
	LastLogin    *time.Time  `json:"lastLogin,omitempty"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := HashPassword(pwd)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) bool {
	return VerifyPassword(u.PasswordHash, pwd)
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// EmployeeID returns the teacher's employee ID, if any.
func (u *User) EmployeeID() string {
	if u.Role == RoleTeacher && u.Profile.TeacherInfo != nil {
		return u.Profile.TeacherInfo.EmployeeID
	}
	return ""
}

// StudentID returns the student's student ID, if any.
func (u *User) StudentID() string {
	if u.Role == RoleStudent && u.Profile.StudentInfo != nil {
		return u.Profile.StudentInfo.StudentID
	}
	return ""
}

// normalize drops any role info that does not belong to the user's role.
func (u *User) normalize() {
	p := &u.Profile
	if u.Role != RoleAdmin {
		p.AdminInfo = nil
	}
	if u.Role != RoleTeacher {
		p.TeacherInfo = nil
	}
	if u.Role != RoleStudent {
		p.StudentInfo = nil
	}
	if u.Role != RoleParent {
		p.ParentInfo = nil
	}
}

// checkRoleInfo reports role info that was supplied for another role, and missing required role info.
func checkRoleInfo(role Role, p Profile) error {
	mismatch := func(field string) error {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: "not allowed for role " + string(role)})
	}
	if p.AdminInfo != nil && role != RoleAdmin {
		return mismatch("adminInfo")
	}
	if p.TeacherInfo != nil && role != RoleTeacher {
		return mismatch("teacherInfo")
	}
	if p.StudentInfo != nil && role != RoleStudent {
		return mismatch("studentInfo")
	}
	if p.ParentInfo != nil && role != RoleParent {
		return mismatch("parentInfo")
	}
	if role == RoleStudent && (p.StudentInfo == nil || p.StudentInfo.StudentID == "") {
		return core.NewValidationError(nil, core.FieldError{Field: FieldStudentID, Error: "studentID is required and must be unique"})
	}
	return nil
}

// NewUser contains information needed to create a User with a chosen password (admin registration, admin CLI).
type NewUser struct {
	Role     Role    `json:"-" validate:"role"`
	Username string  `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required"`
	Profile  Profile `json:"profile"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Profile.Name = core.CleanString(nu.Profile.Name)
	if nu.Username == "" {
		nu.Username = nu.Email
	}
	return validate.Struct(nu)
}

// ProvisionUser contains what an admin supplies to create a teacher, student or parent account.
// The password is generated.
type ProvisionUser struct {
	Role     Role    `json:"-" validate:"role"`
	Username string  `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email    string  `json:"email" validate:"required,email"`
	Profile  Profile `json:"profile"`
}

func (pu *ProvisionUser) Validate(validate *validator.Validate) error {
	pu.Username = core.CleanString(pu.Username, true /* lower */)
	pu.Email = core.CleanString(pu.Email, true /* lower */)
	pu.Profile.Name = core.CleanString(pu.Profile.Name)
	if pu.Username == "" {
		pu.Username = pu.Email
	}
	return validate.Struct(pu)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Role and password cannot be changed here.
type UpdateUser struct {
	Username string         `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email    string         `json:"email" validate:"omitempty,email"`
	Profile  *ProfileUpdate `json:"profile"`
}

// ProfileUpdate is a partial Profile: nil fields are left untouched.
// Role info is replaced as a whole when supplied.
type ProfileUpdate struct {
	Name         *string    `json:"name" validate:"omitempty,min=1"`
	DateOfBirth  *time.Time `json:"dateOfBirth"`
	Gender       *Gender    `json:"gender" validate:"omitempty,oneof=Male Female Other"`
	Phone        *string    `json:"phone"`
	Address      *string    `json:"address"`
	ProfileImage *string    `json:"-"` // set from an uploaded file only

	AdminInfo   *AdminInfo   `json:"adminInfo"`
	TeacherInfo *TeacherInfo `json:"teacherInfo"`
	StudentInfo *StudentInfo `json:"studentInfo"`
	ParentInfo  *ParentInfo  `json:"parentInfo"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.Username = core.CleanString(uu.Username, true /* lower */)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	if uu.Profile != nil && uu.Profile.Name != nil {
		name := core.CleanString(*uu.Profile.Name)
		uu.Profile.Name = &name
	}
	return validate.Struct(uu)
}

// apply merges the update into usr: top-level profile fields one by one, role info wholesale.
func (uu UpdateUser) apply(usr *User) {
	if uu.Username != "" {
		usr.Username = uu.Username
	}
	if uu.Email != "" {
		usr.Email = uu.Email
	}
	pu := uu.Profile
	if pu == nil {
		return
	}
	p := &usr.Profile
	if pu.Name != nil {
		p.Name = *pu.Name
	}
	if pu.DateOfBirth != nil {
		p.DateOfBirth = pu.DateOfBirth
	}
	if pu.Gender != nil {
		p.Gender = *pu.Gender
	}
	if pu.Phone != nil {
		p.Phone = *pu.Phone
	}
	if pu.Address != nil {
		p.Address = *pu.Address
	}
	if pu.ProfileImage != nil {
		p.ProfileImage = *pu.ProfileImage
	}
	if pu.AdminInfo != nil {
		p.AdminInfo = pu.AdminInfo
	}
	if pu.TeacherInfo != nil {
		p.TeacherInfo = pu.TeacherInfo
	}
	if pu.StudentInfo != nil {
		p.StudentInfo = pu.StudentInfo
	}
	if pu.ParentInfo != nil {
		p.ParentInfo = pu.ParentInfo
	}
}

type ChangePassword struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`

	attrs []string // of the user changing their password
}

// Validate applies the password policy, checking similarity against usr's attributes.
func (cp ChangePassword) Validate(validate *validator.Validate, usr User) error {
	cp.attrs = []string{usr.Profile.Name, usr.Username, usr.Email}
	return validate.Struct(cp)
}

type ResetUserPassword struct {
	Token    string `json:"-" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search string   `query:"search"`
	Roles  []Role   `query:"-"`
	IDs    []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// OrderingFields are the fields users can be ordered by.
var OrderingFields = []string{"username", "email", "created_at"}
