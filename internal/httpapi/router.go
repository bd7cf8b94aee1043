package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterTelemetryRoutes 注册遥测 API 路由
func (r *Router) RegisterTelemetryRoutes(d *DeviceHandler, a *AlertHandler) {
	// devices
	r.Handle("/telemetry/api/v1/devices", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d.ListDevices(w, req)
	})

	r.Handle("/telemetry/api/v1/devices/stats", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d.GetStats(w, req)
	})

	// devices/{id} 以及 devices/{id}/readings、devices/{id}/status
	r.Handle("/telemetry/api/v1/devices/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/telemetry/api/v1/devices/")
		if rest == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1:
			switch req.Method {
			case http.MethodGet:
				d.GetDevice(w, req, parts[0])
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case len(parts) == 2 && parts[1] == "readings":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			d.ListReadings(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "status":
			if req.Method != http.MethodPatch {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			d.UpdateStatus(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// alerts
	r.Handle("/telemetry/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.ListAlerts(w, req)
	})

	// alerts/{id} 以及 alerts/{id}/resolve、alerts/{id}/notify
	r.Handle("/telemetry/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/telemetry/api/v1/alerts/")
		if rest == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1:
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			a.GetAlert(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "resolve":
			if req.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			a.ResolveAlert(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "notify":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			a.NotifyAlert(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// health
	r.Handle("/telemetry/api/v1/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}
