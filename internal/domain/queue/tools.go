package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tools exposes the queue operations as MCP tools.
type Tools struct {
	svc *Service
}

func NewTools(svc *Service) *Tools {
	return &Tools{svc: svc}
}

// Register adds every queue tool to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("admit_patient",
		mcp.WithDescription("Admit a patient to the waiting list"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Full name")),
		mcp.WithNumber("age", mcp.Required(), mcp.Description("Age in years (1-150)")),
		mcp.WithNumber("priority", mcp.Required(), mcp.Description("1=High, 2=Medium, 3=Low")),
	), t.AdmitPatient)

	s.AddTool(mcp.NewTool("serve_next",
		mcp.WithDescription("Serve the most urgent waiting patient"),
	), t.ServeNext)

	s.AddTool(mcp.NewTool("list_queue",
		mcp.WithDescription("List waiting patients in serving order"),
	), t.ListQueue)

	s.AddTool(mcp.NewTool("clear_queue",
		mcp.WithDescription("Remove every waiting patient"),
	), t.ClearQueue)

	s.AddTool(mcp.NewTool("list_served",
		mcp.WithDescription("List served patients, most recent first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of rows (default 20)")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip")),
	), t.ListServed)

	s.AddTool(mcp.NewTool("queue_status",
		mcp.WithDescription("How many patients are waiting and who is next"),
	), t.QueueStatus)

	s.AddTool(mcp.NewTool("find_patient",
		mcp.WithDescription("Look up queued or served patients by part of their name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name or part of it")),
	), t.FindPatient)

	s.AddTool(mcp.NewTool("remove_served",
		mcp.WithDescription("Delete a served patient by id"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Patient id")),
	), t.RemoveServed)
}

func (t *Tools) AdmitPatient(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	age, err := req.RequireInt("age")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prio, err := req.RequireInt("priority")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := t.svc.AdmitPatient(ctx, name, age, Priority(prio))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return mcp.NewToolResultError("Error: " + verr.Reason), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Patient added successfully with ID: %d", p.ID)), nil
}

func (t *Tools) ServeNext(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, ok, err := t.svc.ServeNext(ctx)
	if errors.Is(err, ErrNoLongerQueued) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return mcp.NewToolResultText("No patients in queue."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Served patient: %s (ID: %d)", p.Name, p.ID)), nil
}

func (t *Tools) ListQueue(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(nonNil(t.svc.Queue()))
}

func (t *Tools) ClearQueue(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := t.svc.Clear(ctx)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queue cleared (%d removed).", n)), nil
}

func (t *Tools) ListServed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	offset := req.GetInt("offset", 0)
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, _, err := t.svc.Served(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Record{}
	}
	return jsonResult(items)
}

func (t *Tools) RemoveServed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	found, err := t.svc.RemoveServed(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("Patient with ID %d not found in served list.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Patient with ID %d removed from served list.", id)), nil
}

func (t *Tools) QueueStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := t.svc.Status()
	if st.Next == nil {
		return mcp.NewToolResultText("There are no patients currently in the queue."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("There are %d patient(s) in the queue. Next: %s.",
		st.Waiting, describePatient(*st.Next))), nil
}

func (t *Tools) FindPatient(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows, err := t.svc.FindPatients(ctx, name)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return mcp.NewToolResultError("Error: " + verr.Reason), nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No patients matching '%s'.", name)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d patient(s) matching '%s':", len(rows), name)
	for _, r := range rows {
		fmt.Fprintf(&b, "\n- %s, Status: %s", describePatient(r.Patient), r.Status)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func describePatient(p Patient) string {
	return fmt.Sprintf("Patient ID %d: %s, Age %d, Priority %s (%d)", p.ID, p.Name, p.Age, p.Priority, int(p.Priority))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
