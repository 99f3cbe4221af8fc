package imc

// PlanVariable declares a plan variable.
type PlanVariable struct {
	Name   string
	Value  string
	Type   VariableType
	Access VariableAccess
}

func (*PlanVariable) ID() uint16     { return 561 }
func (*PlanVariable) Abbrev() string { return "PlanVariable" }

func (m *PlanVariable) Fields() []Field {
	return []Field{{"name", m.Name}, {"value", m.Value}, {"type", m.Type}, {"access", m.Access}}
}

func (m *PlanVariable) marshal(w *writer) {
	w.text(m.Name)
	w.text(m.Value)
	w.u8(uint8(m.Type))
	w.u8(uint8(m.Access))
}

func (m *PlanVariable) unmarshal(r *reader) {
	m.Name = r.text()
	m.Value = r.text()
	m.Type = VariableType(r.u8())
	m.Access = VariableAccess(r.u8())
}

// PlanManeuver names a maneuver inside a plan.
type PlanManeuver struct {
	ManeuverID   string
	Data         Maneuver
	StartActions []Message
	EndActions   []Message
}

func (*PlanManeuver) ID() uint16     { return 552 }
func (*PlanManeuver) Abbrev() string { return "PlanManeuver" }

func (m *PlanManeuver) Fields() []Field {
	var data Message = m.Data
	return []Field{
		{"maneuver_id", m.ManeuverID},
		{"data", data},
		{"start_actions", m.StartActions},
		{"end_actions", m.EndActions},
	}
}

func (m *PlanManeuver) marshal(w *writer) {
	w.text(m.ManeuverID)
	w.message(m.Data)
	writeList(w, m.StartActions)
	writeList(w, m.EndActions)
}

func (m *PlanManeuver) unmarshal(r *reader) {
	m.ManeuverID = r.text()
	m.Data = readInline[Maneuver](r)
	m.StartActions = readList[Message](r)
	m.EndActions = readList[Message](r)
}

// PlanTransition moves plan execution from one maneuver to another when
// its conditions hold.
type PlanTransition struct {
	SourceMan  string
	DestMan    string
	Conditions string
	Actions    []Message
}

func (*PlanTransition) ID() uint16     { return 553 }
func (*PlanTransition) Abbrev() string { return "PlanTransition" }

func (m *PlanTransition) Fields() []Field {
	return []Field{
		{"source_man", m.SourceMan},
		{"dest_man", m.DestMan},
		{"conditions", m.Conditions},
		{"actions", m.Actions},
	}
}

func (m *PlanTransition) marshal(w *writer) {
	w.text(m.SourceMan)
	w.text(m.DestMan)
	w.text(m.Conditions)
	writeList(w, m.Actions)
}

func (m *PlanTransition) unmarshal(r *reader) {
	m.SourceMan = r.text()
	m.DestMan = r.text()
	m.Conditions = r.text()
	m.Actions = readList[Message](r)
}

// PlanSpecification is a complete plan: its maneuvers and the transitions
// between them.
type PlanSpecification struct {
	PlanID       string
	Description  string
	VNamespace   string
	Variables    []*PlanVariable
	StartManID   string
	Maneuvers    []*PlanManeuver
	Transitions  []*PlanTransition
	StartActions []Message
	EndActions   []Message
}

func (*PlanSpecification) ID() uint16     { return 551 }
func (*PlanSpecification) Abbrev() string { return "PlanSpecification" }

func (m *PlanSpecification) Fields() []Field {
	return []Field{
		{"plan_id", m.PlanID},
		{"description", m.Description},
		{"vnamespace", m.VNamespace},
		{"variables", messages(m.Variables)},
		{"start_man_id", m.StartManID},
		{"maneuvers", messages(m.Maneuvers)},
		{"transitions", messages(m.Transitions)},
		{"start_actions", m.StartActions},
		{"end_actions", m.EndActions},
	}
}

func (m *PlanSpecification) marshal(w *writer) {
	w.text(m.PlanID)
	w.text(m.Description)
	w.text(m.VNamespace)
	writeList(w, m.Variables)
	w.text(m.StartManID)
	writeList(w, m.Maneuvers)
	writeList(w, m.Transitions)
	writeList(w, m.StartActions)
	writeList(w, m.EndActions)
}

func (m *PlanSpecification) unmarshal(r *reader) {
	m.PlanID = r.text()
	m.Description = r.text()
	m.VNamespace = r.text()
	m.Variables = readList[*PlanVariable](r)
	m.StartManID = r.text()
	m.Maneuvers = readList[*PlanManeuver](r)
	m.Transitions = readList[*PlanTransition](r)
	m.StartActions = readList[Message](r)
	m.EndActions = readList[Message](r)
}

// Maneuver returns the maneuver with the given id, or nil.
func (m *PlanSpecification) Maneuver(id string) *PlanManeuver {
	for _, pm := range m.Maneuvers {
		if pm.ManeuverID == id {
			return pm
		}
	}
	return nil
}

// PlanControl requests a plan operation from a vehicle, or carries its reply.
type PlanControl struct {
	Type      PlanControlType
	Op        PlanControlOp
	RequestID uint16
	PlanID    string
	Flags     PlanControlFlags
	Arg       Message
	Info      string
}

func (*PlanControl) ID() uint16     { return 559 }
func (*PlanControl) Abbrev() string { return "PlanControl" }

func (m *PlanControl) Fields() []Field {
	return []Field{
		{"type", m.Type},
		{"op", m.Op},
		{"request_id", m.RequestID},
		{"plan_id", m.PlanID},
		{"flags", m.Flags},
		{"arg", m.Arg},
		{"info", m.Info},
	}
}

func (m *PlanControl) marshal(w *writer) {
	w.u8(uint8(m.Type))
	w.u8(uint8(m.Op))
	w.u16(m.RequestID)
	w.text(m.PlanID)
	w.u16(uint16(m.Flags))
	w.message(m.Arg)
	w.text(m.Info)
}

func (m *PlanControl) unmarshal(r *reader) {
	m.Type = PlanControlType(r.u8())
	m.Op = PlanControlOp(r.u8())
	m.RequestID = r.u16()
	m.PlanID = r.text()
	m.Flags = PlanControlFlags(r.u16())
	m.Arg = r.message()
	m.Info = r.text()
}

// PlanControlState reports the state of a vehicle's plan executor.
type PlanControlState struct {
	State        PlanState
	PlanID       string
	PlanETA      int32 // seconds
	PlanProgress float32
	ManID        string
	ManType      uint16
	ManETA       int32 // seconds
	LastOutcome  PlanOutcome
}

func (*PlanControlState) ID() uint16     { return 560 }
func (*PlanControlState) Abbrev() string { return "PlanControlState" }

func (m *PlanControlState) Fields() []Field {
	return []Field{
		{"state", m.State},
		{"plan_id", m.PlanID},
		{"plan_eta", m.PlanETA},
		{"plan_progress", m.PlanProgress},
		{"man_id", m.ManID},
		{"man_type", m.ManType},
		{"man_eta", m.ManETA},
		{"last_outcome", m.LastOutcome},
	}
}

func (m *PlanControlState) marshal(w *writer) {
	w.u8(uint8(m.State))
	w.text(m.PlanID)
	w.i32(m.PlanETA)
	w.f32(m.PlanProgress)
	w.text(m.ManID)
	w.u16(m.ManType)
	w.i32(m.ManETA)
	w.u8(uint8(m.LastOutcome))
}

func (m *PlanControlState) unmarshal(r *reader) {
	m.State = PlanState(r.u8())
	m.PlanID = r.text()
	m.PlanETA = r.i32()
	m.PlanProgress = r.f32()
	m.ManID = r.text()
	m.ManType = r.u16()
	m.ManETA = r.i32()
	m.LastOutcome = PlanOutcome(r.u8())
}

// Abort stops whatever the destination is doing.
type Abort struct{}

func (*Abort) ID() uint16        { return 550 }
func (*Abort) Abbrev() string    { return "Abort" }
func (*Abort) Fields() []Field   { return nil }
func (*Abort) marshal(*writer)   {}
func (*Abort) unmarshal(*reader) {}
