package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/notification"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/results"
	"github.com/trezcool/tathmini/core/scale"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/services/cache"
	"github.com/trezcool/tathmini/services/email"
	"github.com/trezcool/tathmini/services/logger"
	"github.com/trezcool/tathmini/storage/database/inmem"
)

// Env wires every service on an in-memory database.
type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
	Mail       core.EmailService
	Cache      core.Cache

	UserRepo          user.Repository
	GroupRepo         group.Repository
	ScaleRepo         scale.Repository
	TemplateRepo      template.Repository
	EvalRepo          evaluation.Repository
	ResponseRepo      response.Repository
	EmailTemplateRepo notification.Repository

	Users         user.Service
	Groups        group.Service
	Scales        scale.Service
	Templates     template.Service
	Evals         evaluation.Service
	Responses     response.Service
	Results       results.Service
	Notifications notification.Service
}

// NewEnv returns a fresh Env; sched may be nil.
func NewEnv(sched evaluation.Scheduler) *Env {
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	env := &Env{
		Conf:   conf,
		DB:     db,
		Logger: logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf),
		Mail:   emailsvc.NewConsoleServiceMock(conf),
		Cache:  cachesvc.NewMemoryCache(),

		UserRepo:          inmemdb.NewUserRepository(db),
		GroupRepo:         inmemdb.NewGroupRepository(db),
		ScaleRepo:         inmemdb.NewScaleRepository(db),
		TemplateRepo:      inmemdb.NewTemplateRepository(db),
		EvalRepo:          inmemdb.NewEvaluationRepository(db),
		ResponseRepo:      inmemdb.NewResponseRepository(db),
		EmailTemplateRepo: inmemdb.NewEmailTemplateRepository(db),
	}
	env.Validate, env.Translator = NewTranslatedValidator()
	emailsvc.ResetSentMessages()

	env.Users = user.NewServiceMock(conf, env.UserRepo, env.Mail)
	env.Groups = group.NewService(env.GroupRepo, env.Users, env.EvalRepo)
	env.Scales = scale.NewService(env.ScaleRepo, env.TemplateRepo)
	env.Templates = template.NewService(db, env.TemplateRepo, env.Scales, env.EvalRepo)
	env.Evals = evaluation.NewService(conf, evaluation.Deps{
		Tx:        db,
		Repo:      env.EvalRepo,
		Templates: env.Templates,
		Groups:    env.Groups,
		Users:     env.Users,
		Responses: env.ResponseRepo,
		Emails:    notification.EvaluationTemplates{Repo: env.EmailTemplateRepo},
		Scheduler: sched,
		Logger:    env.Logger,
	})
	env.Responses = response.NewService(db, env.ResponseRepo, env.Evals, env.Templates, env.Groups)
	env.Results = results.NewService(conf, results.Deps{
		Evals:     env.Evals,
		Templates: env.Templates,
		Responses: env.ResponseRepo,
		Groups:    env.Groups,
		Cache:     env.Cache,
		Logger:    env.Logger,
	})
	env.Notifications = notification.NewService(conf, notification.Deps{
		Tx:          db,
		Repo:        env.EmailTemplateRepo,
		Evals:       env.Evals,
		EvalCounter: env.EvalRepo,
		Groups:      env.Groups,
		Users:       env.Users,
		Responses:   env.ResponseRepo,
		Mail:        env.Mail,
		Logger:      env.Logger,
	})
	return env
}

// NewValidator returns a validator with every custom tag registered.
func NewValidator() *validator.Validate {
	validate, _ := NewTranslatedValidator()
	return validate
}

// NewTranslatedValidator returns NewValidator along with the translator of its messages.
func NewTranslatedValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	group.InitValidators(validate, translator)
	scale.InitValidators(validate, translator)
	template.InitValidators(validate, translator)
	evaluation.InitValidators(validate, translator)
	notification.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (env *Env) Admin(t *testing.T, uname string) user.User {
	return CreateUser(t, env.UserRepo, "Admin "+uname, uname, uname+"@test.cd", "", []string{user.RoleAdmin}, true)
}

func (env *Env) Instructor(t *testing.T, uname string) user.User {
	return CreateUser(t, env.UserRepo, "Instructor "+uname, uname, uname+"@test.cd", "", []string{user.RoleInstructor}, true)
}

func (env *Env) Student(t *testing.T, uname string) user.User {
	return CreateUser(t, env.UserRepo, "Student "+uname, uname, uname+"@test.cd", "", []string{user.RoleStudent}, true)
}

// Group creates a site with its instructors and students.
func (env *Env) Group(t *testing.T, title string, instructors, students []user.User) group.Group {
	ctx := context.Background()
	now := core.Now()
	grp, err := env.GroupRepo.CreateGroup(ctx, group.Group{Title: title, Type: group.TypeSite, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("createGroup() failed: %v", err)
	}
	add := func(usrs []user.User, role string) {
		for _, usr := range usrs {
			m := group.Membership{GroupID: grp.ID, UserID: usr.ID, Role: role, CreatedAt: now}
			if _, err := env.GroupRepo.SaveMembership(ctx, m); err != nil {
				t.Fatalf("saveMembership() failed: %v", err)
			}
		}
	}
	add(instructors, group.RoleInstructor)
	add(students, group.RoleStudent)
	return grp
}

func (env *Env) Scale(t *testing.T, owner user.User, title string, options ...string) scale.Scale {
	s, err := env.Scales.Create(context.Background(), owner, scale.NewScale{
		Title:   title,
		Options: options,
		Ideal:   scale.IdealHigh,
		Mode:    scale.ModeScale,
		Sharing: core.SharingPrivate,
	})
	if err != nil {
		t.Fatalf("createScale() failed: %v", err)
	}
	return s
}

// Template creates a standard template holding a header, a compulsory scaled item
// on a 3-option scale, a multiple answer item and a text item, in that order.
func (env *Env) Template(t *testing.T, owner user.User, title string) (template.Template, []template.TemplateItem) {
	ctx := context.Background()
	tmpl, err := env.Templates.Create(ctx, owner, template.NewTemplate{
		Title:   title,
		Type:    template.TypeStandard,
		Sharing: core.SharingPrivate,
	})
	if err != nil {
		t.Fatalf("createTemplate() failed: %v", err)
	}
	agree := env.Scale(t, owner, title+" agreement", "Disagree", "Neutral", "Agree")

	itemFixtures := []struct {
		item       template.NewItem
		compulsory bool
	}{
		{item: template.NewItem{Text: "About the course", Classification: template.ClassHeader}},
		{item: template.NewItem{Text: "The course was useful", Classification: template.ClassScaled, ScaleID: agree.ID, UsesNA: true}, compulsory: true},
		{item: template.NewItem{Text: "Which parts did you like", Classification: template.ClassMultipleAnswer, ScaleID: agree.ID}},
		{item: template.NewItem{Text: "Comments", Classification: template.ClassText}},
	}
	tis := make([]template.TemplateItem, 0, len(itemFixtures))
	for _, fx := range itemFixtures {
		fx.item.Category = template.CategoryCourse
		fx.item.Sharing = core.SharingPrivate
		it, err := env.Templates.CreateItem(ctx, owner, fx.item)
		if err != nil {
			t.Fatalf("createItem() failed: %v", err)
		}
		ti, err := env.Templates.AddItem(ctx, owner, tmpl.ID, template.NewTemplateItem{ItemID: it.ID, Compulsory: fx.compulsory})
		if err != nil {
			t.Fatalf("addItem() failed: %v", err)
		}
		tis = append(tis, ti)
	}
	return tmpl, tis
}

// Evaluation stores an evaluation with the given dates, locking its template,
// and assigns it to the groups with instructor approval.
func (env *Env) Evaluation(
	t *testing.T,
	owner user.User,
	tmpl template.Template,
	start time.Time,
	due, stop, view *time.Time,
	groups ...group.Group,
) evaluation.Evaluation {
	ctx := context.Background()
	now := core.Now()
	e := evaluation.Evaluation{
		OwnerID:                owner.ID,
		Title:                  "Evaluation of " + tmpl.Title,
		TemplateID:             tmpl.ID,
		StartDate:              start.UTC(),
		DueDate:                due,
		StopDate:               stop,
		ViewDate:               view,
		ResultsSharing:         evaluation.ResultsVisible,
		StudentsViewResults:    true,
		InstructorsViewResults: true,
		ReminderDays:           env.Conf.Evaluation.ReminderDays,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	e.State = evaluation.DeriveState(e, now)
	e, err := env.EvalRepo.CreateEvaluation(ctx, e)
	if err != nil {
		t.Fatalf("createEvaluation() failed: %v", err)
	}
	if err := env.Templates.Lock(ctx, tmpl.ID); err != nil {
		t.Fatalf("lockTemplate() failed: %v", err)
	}
	for _, grp := range groups {
		_, err := env.EvalRepo.CreateAssignGroup(ctx, evaluation.AssignGroup{
			EvaluationID:           e.ID,
			GroupID:                grp.ID,
			InstructorApproval:     true,
			InstructorsViewResults: true,
			StudentsViewResults:    true,
			CreatedAt:              now,
		})
		if err != nil {
			t.Fatalf("createAssignGroup() failed: %v", err)
		}
	}
	return e
}

// TimePtr returns a pointer to now shifted by d.
func TimePtr(d time.Duration) *time.Time {
	t := core.Now().Add(d)
	return &t
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
