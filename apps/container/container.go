package container

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/notification"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/results"
	"github.com/trezcool/tathmini/core/scale"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
	cachesvc "github.com/trezcool/tathmini/services/cache"
	emailsvc "github.com/trezcool/tathmini/services/email"
	logsvc "github.com/trezcool/tathmini/services/logger"
	schedulersvc "github.com/trezcool/tathmini/services/scheduler"
	"github.com/trezcool/tathmini/storage/database"
	sqlxrepos "github.com/trezcool/tathmini/storage/database/sqlx"
)

// Options tune the container for one of the apps.
type Options struct {
	// Name prefixes the log lines of the app, e.g. "API".
	Name string
	// Migrate creates the database if needed and applies the pending migrations on start.
	Migrate bool
}

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(opts Options) func(conf *core.Config) core.Logger {
	return func(conf *core.Config) core.Logger {
		stdLogger := log.New(os.Stdout, opts.Name+" : ", log.LstdFlags)
		return logsvc.NewRollbarLogger(stdLogger, conf)
	}
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(opts Options) func(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, *sql.DB) {
	return func(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, *sql.DB) {
		setUp := func() (*sqlx.DB, error) {
			if opts.Migrate {
				if err := database.CreateIfNotExist(conf); err != nil {
					return nil, err
				}
			}

			db, err := database.Open(conf)
			if err != nil {
				return nil, err
			}

			if opts.Migrate {
				if err = database.Migrate(db.DB, "up"); err != nil {
					return nil, err
				}
			}
			return db, nil
		}

		db, err := setUp()
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		return db, db.DB
	}
}

func newTransactor(db *sqlx.DB) core.Transactor {
	return sqlxrepos.NewTransactor(db)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() (*validator.Validate, ut.Translator) {
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

// newCache uses redis when configured, and an in-process cache otherwise.
func newCache(conf *core.Config, logger core.Logger) core.Cache {
	if conf.Redis.Addr == "" {
		return cachesvc.NewMemoryCache()
	}
	client, err := cachesvc.NewRedisClient(context.Background(), conf)
	if err != nil {
		logger.Warn("redis unavailable; caching in memory", err)
		return cachesvc.NewMemoryCache()
	}
	return cachesvc.NewRedisCache(client)
}

func newScheduler(conf *core.Config, logger core.Logger) evaluation.Scheduler {
	if !conf.Evaluation.SchedulerEnabled {
		return evaluation.NoopScheduler{}
	}
	return schedulersvc.NewScheduler(conf, logger)
}

// CloseScheduler releases the job queue connection of sched, if it holds one.
func CloseScheduler(sched evaluation.Scheduler, logger core.Logger) {
	closer, ok := sched.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Error("closing scheduler", err)
	}
}

// repositories

func newEvaluationRepository(db *sqlx.DB) evaluation.Repository {
	return sqlxrepos.NewEvaluationRepository(db)
}

func newResponseRepository(db *sqlx.DB) response.Repository {
	return sqlxrepos.NewResponseRepository(db)
}

// services

func newGroupService(repo group.Repository, users user.Service, evals evaluation.Repository) group.Service {
	return group.NewService(repo, users, evals)
}

func newScaleService(repo scale.Repository, templates template.Repository) scale.Service {
	return scale.NewService(repo, templates)
}

func newTemplateService(tx core.Transactor, repo template.Repository, scales scale.Service, evals evaluation.Repository) template.Service {
	return template.NewService(tx, repo, scales, evals)
}

type evaluationParams struct {
	dig.In
	Conf      *core.Config
	Tx        core.Transactor
	Repo      evaluation.Repository
	Templates template.Service
	Groups    group.Service
	Users     user.Service
	Responses response.Repository
	Emails    notification.Repository
	Scheduler evaluation.Scheduler
	Logger    core.Logger
}

func newEvaluationService(p evaluationParams) evaluation.Service {
	return evaluation.NewService(p.Conf, evaluation.Deps{
		Tx:        p.Tx,
		Repo:      p.Repo,
		Templates: p.Templates,
		Groups:    p.Groups,
		Users:     p.Users,
		Responses: p.Responses,
		Emails:    notification.EvaluationTemplates{Repo: p.Emails},
		Scheduler: p.Scheduler,
		Logger:    p.Logger,
	})
}

func newResponseService(
	tx core.Transactor,
	repo response.Repository,
	evals evaluation.Service,
	templates template.Service,
	groups group.Service,
) response.Service {
	return response.NewService(tx, repo, evals, templates, groups)
}

type resultsParams struct {
	dig.In
	Conf      *core.Config
	Evals     evaluation.Service
	Templates template.Service
	Responses response.Repository
	Groups    group.Service
	Cache     core.Cache
	Logger    core.Logger
}

func newResultsService(p resultsParams) results.Service {
	return results.NewService(p.Conf, results.Deps{
		Evals:     p.Evals,
		Templates: p.Templates,
		Responses: p.Responses,
		Groups:    p.Groups,
		Cache:     p.Cache,
		Logger:    p.Logger,
	})
}

type notificationParams struct {
	dig.In
	Conf      *core.Config
	Tx        core.Transactor
	Repo      notification.Repository
	Evals     evaluation.Service
	EvalRepo  evaluation.Repository
	Groups    group.Service
	Users     user.Service
	Responses response.Repository
	Mail      core.EmailService
	Logger    core.Logger
}

func newNotificationService(p notificationParams) notification.Service {
	return notification.NewService(p.Conf, notification.Deps{
		Tx:          p.Tx,
		Repo:        p.Repo,
		Evals:       p.Evals,
		EvalCounter: p.EvalRepo,
		Groups:      p.Groups,
		Users:       p.Users,
		Responses:   p.Responses,
		Mail:        p.Mail,
		Logger:      p.Logger,
	})
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	UserSvc         user.Service
	GroupSvc        group.Service
	ScaleSvc        scale.Service
	TemplateSvc     template.Service
	EvaluationSvc   evaluation.Service
	ResponseSvc     response.Service
	ResultsSvc      results.Service
	NotificationSvc notification.Service
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:            p.Conf,
		Logger:          p.Logger,
		Validate:        p.Validate,
		Translator:      p.Translator,
		UserSvc:         p.UserSvc,
		GroupSvc:        p.GroupSvc,
		ScaleSvc:        p.ScaleSvc,
		TemplateSvc:     p.TemplateSvc,
		EvaluationSvc:   p.EvaluationSvc,
		ResponseSvc:     p.ResponseSvc,
		ResultsSvc:      p.ResultsSvc,
		NotificationSvc: p.NotificationSvc,
	})
}

func newSchedulerHandlers(evals evaluation.Service, notifications notification.Service, logger core.Logger) *schedulersvc.Handlers {
	return &schedulersvc.Handlers{Evals: evals, Notifications: notifications, Logger: logger}
}

// New returns a new dependency injection dig.Container holding every service of the app.
// Providers run lazily: only what an Invoke asks for is built.
func New(opts Options) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger(opts)))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB(opts)))
	must(c.Provide(newTransactor))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(newCache))
	must(c.Provide(newScheduler))

	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewGroupRepository))
	must(c.Provide(sqlxrepos.NewScaleRepository))
	must(c.Provide(sqlxrepos.NewTemplateRepository))
	must(c.Provide(newEvaluationRepository))
	must(c.Provide(newResponseRepository))
	must(c.Provide(sqlxrepos.NewEmailTemplateRepository))

	must(c.Provide(user.NewService))
	must(c.Provide(newGroupService))
	must(c.Provide(newScaleService))
	must(c.Provide(newTemplateService))
	must(c.Provide(newEvaluationService))
	must(c.Provide(newResponseService))
	must(c.Provide(newResultsService))
	must(c.Provide(newNotificationService))

	must(c.Provide(newServer))
	must(c.Provide(newSchedulerHandlers))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
