package processor

import (
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
	"github.com/Financial-Times/service-status-go/gtg"
	status "github.com/Financial-Times/service-status-go/httphandlers"
	"github.com/gorilla/mux"
)

const defaultHealthCheckInterval = 30 * time.Second

type HealthService struct {
	service       Service
	appSystemCode string
	appName       string
	port          int
	description   string
	checks        []fthealth.Check
	interval      time.Duration
}

func NewHealthService(service Service, appSystemCode string, appName string, port int, description string) *HealthService {
	return &HealthService{
		service:       service,
		appSystemCode: appSystemCode,
		appName:       appName,
		port:          port,
		description:   description,
		checks:        service.Healthchecks(),
		interval:      defaultHealthCheckInterval,
	}
}

func (svc *HealthService) RegisterAdminHandlers(router *mux.Router) {
	logger.Info("Registering admin handlers")
	hc := fthealth.TimedHealthCheck{
		HealthCheck: fthealth.HealthCheck{
			SystemCode:  svc.appSystemCode,
			Name:        svc.appName,
			Description: svc.description,
			Checks:      svc.checks,
		},
		Timeout: 10 * time.Second,
	}
	router.HandleFunc("/__health", fthealth.Handler(hc))
	router.HandleFunc(status.PingPath, status.PingHandler)
	router.HandleFunc(status.BuildInfoPath, status.BuildInfoHandler)
	router.HandleFunc(status.GTGPath, status.NewGoodToGoHandler(gtg.StatusChecker(svc.GTG)))
}

// Monitor runs the healthchecks on an interval and reports the overall
// status on the feedback channel, which gates the notification workers.
func (svc *HealthService) Monitor(feedback chan<- bool) {
	for {
		feedback <- svc.healthy()
		time.Sleep(svc.interval)
	}
}

func (svc *HealthService) healthy() bool {
	for _, check := range svc.checks {
		if _, err := check.Checker(); err != nil {
			logger.WithError(err).WithField("check", check.Name).Warn("Healthcheck failed")
			return false
		}
	}
	return true
}

func (svc *HealthService) GTG() gtg.Status {
	var statusChecks []gtg.StatusChecker
	for _, c := range svc.checks {
		check := func(c fthealth.Check) gtg.StatusChecker {
			return func() gtg.Status {
				return gtgCheck(c.Checker)
			}
		}(c)
		statusChecks = append(statusChecks, check)
	}
	return gtg.FailFastParallelCheck(statusChecks)()
}

func gtgCheck(handler func() (string, error)) gtg.Status {
	if _, err := handler(); err != nil {
		return gtg.Status{GoodToGo: false, Message: err.Error()}
	}
	return gtg.Status{GoodToGo: true}
}
