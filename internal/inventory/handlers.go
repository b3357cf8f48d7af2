package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/auth"
	"github.com/HerbHall/aims/internal/importer"
	"github.com/HerbHall/aims/internal/maintenance"
	"github.com/HerbHall/aims/internal/server"
	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

const (
	maxImportBytes = 32 << 20
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/devices/{collection}", Handler: m.handleListDevices},
		{Method: "POST", Path: "/devices/{collection}", Handler: m.handleCreateDevice},
		{Method: "GET", Path: "/devices/{collection}/{tag}", Handler: m.handleGetDevice},
		{Method: "PUT", Path: "/devices/{collection}/{tag}", Handler: m.handleUpdateDevice},
		{Method: "DELETE", Path: "/devices/{collection}/{tag}", Handler: m.handleDeleteDevice},
		{Method: "GET", Path: "/devices/{collection}/{tag}/tasks", Handler: m.handleGetTasks},
		{Method: "PATCH", Path: "/devices/{collection}/{tag}/tasks", Handler: m.handleToggleTask},
		{Method: "POST", Path: "/devices/{collection}/{tag}/move", Handler: m.handleMoveDevice},
		{Method: "POST", Path: "/resync", Handler: m.handleResync},
		{Method: "POST", Path: "/import/{collection}", Handler: m.handleImport},
		{Method: "GET", Path: "/export/{collection}", Handler: m.handleExport},
		{Method: "GET", Path: "/dashboard", Handler: m.handleDashboard},
	}
}

// deviceRequest is the writable part of a device. Status is never
// accepted from clients; it is always recomputed.
type deviceRequest struct {
	Tag                  string                       `json:"tag"`
	DeviceType           string                       `json:"device_type"`
	Brand                string                       `json:"brand"`
	Model                string                       `json:"model"`
	SerialNumber         string                       `json:"serial_number"`
	StorageMedium        string                       `json:"storage_medium"`
	Condition            string                       `json:"condition"`
	DateAdded            *time.Time                   `json:"date_added"`
	LastMaintenanceDate  *time.Time                   `json:"last_maintenance_date"`
	MaintenanceChecklist map[string]models.TaskRecord `json:"maintenance_checklist"`
	AssignedTo           string                       `json:"assigned_to"`
	ClientID             string                       `json:"client_id"`
	Remarks              string                       `json:"remarks"`
}

// apply copies the editable fields of req onto d. The checklist and
// maintenance date are only taken on create.
func (req *deviceRequest) apply(d *models.Device, coll models.Collection, create bool) error {
	if strings.TrimSpace(req.DeviceType) == "" {
		return errors.New("device_type is required")
	}
	var cond models.Condition
	if req.Condition != "" {
		c, ok := models.ParseCondition(req.Condition)
		if !ok {
			return fmt.Errorf("unknown condition %q", req.Condition)
		}
		cond = c
	}

	d.DeviceType = models.DeviceType(strings.TrimSpace(req.DeviceType))
	d.Brand = req.Brand
	d.Model = req.Model
	d.SerialNumber = req.SerialNumber
	d.StorageMedium = req.StorageMedium
	d.Condition = cond
	d.Remarks = req.Remarks
	if req.DateAdded != nil {
		d.DateAdded = req.DateAdded.UTC()
	}
	if coll == models.CollectionDeployed {
		d.AssignedTo, d.ClientID = req.AssignedTo, req.ClientID
	} else {
		d.AssignedTo, d.ClientID = "", ""
	}
	if create {
		d.LastMaintenanceDate = req.LastMaintenanceDate
		d.MaintenanceChecklist = req.MaintenanceChecklist
	}
	return nil
}

func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := services.DeviceFilter{
		Status:     q.Get("status"),
		DeviceType: q.Get("device_type"),
		Condition:  q.Get("condition"),
		AssignedTo: q.Get("assigned_to"),
		Search:     q.Get("q"),
	}
	opts := services.ListOptions{
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))

	res, err := m.repo.List(r.Context(), coll, filter, opts)
	if err != nil {
		m.logger.Error("failed to list devices", zap.String("collection", string(coll)), zap.Error(err))
		server.InternalError(w, "failed to list devices", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}

func (m *Module) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	d := &models.Device{Tag: strings.TrimSpace(req.Tag)}
	if d.Tag == "" {
		server.BadRequest(w, "tag is required", r.URL.Path)
		return
	}
	if err := req.apply(d, coll, true); err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	}

	if err := m.projector.Create(r.Context(), coll, d); err != nil {
		m.writeDeviceError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicDeviceCreated, deviceChange(r.Context(), "create", coll, d, nil))
	server.WriteJSON(w, http.StatusCreated, d)
}

func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	d, err := m.repo.Get(r.Context(), coll, r.PathValue("tag"))
	if err != nil {
		m.writeDeviceError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, d)
}

func (m *Module) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	tag := r.PathValue("tag")
	if req.Tag != "" && req.Tag != tag {
		server.BadRequest(w, "tag cannot be changed", r.URL.Path)
		return
	}

	var badInput error
	d, err := m.projector.Edit(r.Context(), coll, tag, func(d *models.Device, _ time.Time) error {
		if err := req.apply(d, coll, false); err != nil {
			badInput = err
			return err
		}
		return nil
	})
	if badInput != nil {
		server.BadRequest(w, badInput.Error(), r.URL.Path)
		return
	}
	if err != nil {
		m.writeDeviceError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicDeviceUpdated, deviceChange(r.Context(), "update", coll, d, nil))
	server.WriteJSON(w, http.StatusOK, d)
}

func (m *Module) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	tag := r.PathValue("tag")
	if err := m.repo.Delete(r.Context(), coll, tag); err != nil {
		m.writeDeviceError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicDeviceDeleted, deviceChange(r.Context(), "delete", coll, &models.Device{Tag: tag}, nil))
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTasks returns the device's resolved checklist with effective
// completion, i.e. expired completions shown as not done.
func (m *Module) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	d, err := m.repo.Get(r.Context(), coll, r.PathValue("tag"))
	if err != nil {
		m.writeDeviceError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, maintenance.Assess(d, m.projector.Now()))
}

type toggleRequest struct {
	Task      string `json:"task"`
	Completed bool   `json:"completed"`
}

type deviceAssessment struct {
	Device     *models.Device         `json:"device"`
	Icon       string                 `json:"icon"`
	Assessment maintenance.Assessment `json:"assessment"`
}

// assess describes a device that was just written. The write stamped
// UpdatedAt with the projection time, so the assessment uses the same
// instant and its computed status matches the stored one.
func (m *Module) assess(d *models.Device) deviceAssessment {
	return deviceAssessment{Device: d, Icon: d.DeviceType.Icon(), Assessment: maintenance.Assess(d, d.UpdatedAt)}
}

func (m *Module) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
		server.BadRequest(w, "task is required", r.URL.Path)
		return
	}
	d, err := m.projector.ToggleTask(r.Context(), coll, r.PathValue("tag"), req.Task, req.Completed)
	if err != nil {
		m.writeDeviceError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicTaskToggled, deviceChange(r.Context(), "toggle_task", coll, d, map[string]any{
		"task": req.Task, "completed": req.Completed,
	}))
	server.WriteJSON(w, http.StatusOK, m.assess(d))
}

type moveRequest struct {
	To         string `json:"to"`
	AssignedTo string `json:"assigned_to"`
	ClientID   string `json:"client_id"`
}

func (m *Module) handleMoveDevice(w http.ResponseWriter, r *http.Request) {
	from, ok := collection(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	to, ok := models.ParseCollection(req.To)
	if !ok {
		server.BadRequest(w, "to must be inventory or deployed", r.URL.Path)
		return
	}
	tag := r.PathValue("tag")
	d, err := m.projector.Move(r.Context(), tag, from, to, maintenance.Assignment{
		AssignedTo: req.AssignedTo,
		ClientID:   req.ClientID,
	})
	if err != nil {
		m.writeDeviceError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicDeviceMoved, deviceChange(r.Context(), "move", to, d, map[string]any{
		"from": string(from), "to": string(to), "assigned_to": d.AssignedTo,
	}))
	server.WriteJSON(w, http.StatusOK, d)
}

func (m *Module) handleResync(w http.ResponseWriter, r *http.Request) {
	results, err := m.ResyncAll(r.Context())
	if err != nil {
		m.logger.Error("resync failed", zap.Error(err))
		server.InternalError(w, "resync failed", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, results)
}

// handleImport accepts an xlsx workbook either as the "file" field of a
// multipart form or as the raw request body.
func (m *Module) handleImport(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			server.BadRequest(w, "multipart field \"file\" is required", r.URL.Path)
			return
		}
		defer file.Close()
		src = file
	}

	res, err := m.importer.Import(r.Context(), coll, src)
	if err != nil {
		m.logger.Warn("import rejected", zap.String("collection", string(coll)), zap.Error(err))
		server.BadRequest(w, "cannot read workbook: "+err.Error(), r.URL.Path)
		return
	}
	m.publish(r.Context(), TopicImported, models.Change{
		Actor:        actor(r.Context()),
		Role:         role(r.Context()),
		Action:       "import",
		ResourceType: "collection",
		ResourceID:   string(coll),
		Metadata:     map[string]any{"total": res.Total, "created": res.Created, "failed": res.Failed},
	})
	server.WriteJSON(w, http.StatusOK, res)
}

func (m *Module) handleExport(w http.ResponseWriter, r *http.Request) {
	coll, ok := collection(w, r)
	if !ok {
		return
	}
	devices, err := m.repo.All(r.Context(), coll)
	if err != nil {
		m.logger.Error("failed to load devices for export", zap.Error(err))
		server.InternalError(w, "failed to export devices", r.URL.Path)
		return
	}
	name := fmt.Sprintf("aims-%s-%s.xlsx", coll, m.clock.Now().Format("20060102"))
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := importer.Export(w, coll, devices); err != nil {
		m.logger.Error("export failed", zap.Error(err))
	}
}

// Dashboard is the persisted status tally per collection.
type Dashboard struct {
	Collections map[models.Collection]map[models.MaintenanceStatus]int `json:"collections"`
	Totals      map[models.MaintenanceStatus]int                       `json:"totals"`
	Total       int                                                    `json:"total"`
}

// handleDashboard reads the stored status field only; it never
// reclassifies devices.
func (m *Module) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash := Dashboard{
		Collections: make(map[models.Collection]map[models.MaintenanceStatus]int, len(models.Collections)),
		Totals:      make(map[models.MaintenanceStatus]int, len(models.Statuses)),
	}
	for _, coll := range models.Collections {
		counts, err := m.repo.CountByStatus(r.Context(), coll)
		if err != nil {
			m.logger.Error("failed to count statuses", zap.String("collection", string(coll)), zap.Error(err))
			server.InternalError(w, "failed to load dashboard", r.URL.Path)
			return
		}
		dash.Collections[coll] = counts
		for status, n := range counts {
			dash.Totals[status] += n
			dash.Total += n
		}
	}
	server.WriteJSON(w, http.StatusOK, dash)
}

func (m *Module) writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		server.NotFound(w, "device not found", r.URL.Path)
	case errors.Is(err, services.ErrAlreadyExists):
		server.Conflict(w, "a device with this tag already exists", r.URL.Path)
	case errors.Is(err, maintenance.ErrUnknownTask):
		server.BadRequest(w, err.Error(), r.URL.Path)
	case errors.Is(err, maintenance.ErrSameCollection):
		server.BadRequest(w, err.Error(), r.URL.Path)
	case errors.Is(err, maintenance.ErrPersist):
		server.Unavailable(w, "device could not be saved; no changes were made", r.URL.Path)
	default:
		m.logger.Error("device operation failed", zap.String("path", r.URL.Path), zap.Error(err))
		server.InternalError(w, "device operation failed", r.URL.Path)
	}
}

// collection validates the {collection} path segment, writing a 404 for
// unknown names.
func collection(w http.ResponseWriter, r *http.Request) (models.Collection, bool) {
	coll, ok := models.ParseCollection(r.PathValue("collection"))
	if !ok {
		server.NotFound(w, "unknown collection "+strconv.Quote(r.PathValue("collection")), r.URL.Path)
	}
	return coll, ok
}

func deviceChange(ctx context.Context, action string, coll models.Collection, d *models.Device, extra map[string]any) models.Change {
	meta := map[string]any{"collection": string(coll)}
	if d.Status != "" {
		meta["status"] = string(d.Status)
	}
	for k, v := range extra {
		meta[k] = v
	}
	return models.Change{
		Actor:        actor(ctx),
		Role:         role(ctx),
		Action:       action,
		ResourceType: "device",
		ResourceID:   d.Tag,
		Metadata:     meta,
	}
}

func actor(ctx context.Context) string { return auth.ActorFromContext(ctx) }

func role(ctx context.Context) string { return string(auth.RoleFromContext(ctx)) }
