package services

import (
	"bytes"
	"os"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"contest-live-service/logger"
	"contest-live-service/models"
)

// 生成消息的事件种类
const (
	AnalyticsAcceptedRun  = "accepted_run"
	AnalyticsFirstToSolve = "first_to_solve"
	AnalyticsLeadChange   = "lead_change"
)

// LoadAnalyticsTemplates 从 YAML 文件加载解说模板, 键是事件种类
// 缺失某个种类只会跳过该类消息的生成, 不影响管道运行
func LoadAnalyticsTemplates(path string) (map[string]*template.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read templates %s", path)
	}
	var texts map[string]string
	if err := yaml.Unmarshal(raw, &texts); err != nil {
		return nil, errors.Wrap(err, "parse templates yaml")
	}

	templates := make(map[string]*template.Template, len(texts))
	for kind, text := range texts {
		tmpl, err := template.New(kind).Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "parse template %q", kind)
		}
		templates[kind] = tmpl
	}
	return templates, nil
}

// analyticsContext 模板渲染上下文
type analyticsContext struct {
	Team    string
	Problem string
	Rank    int
	Solved  int
	Penalty int
}

// AnalyticsGenerator 从记分板变化生成解说消息
// 自产消息与上游适配器自带的解说消息合并在同一条只追加的输出流上
type AnalyticsGenerator struct {
	templates map[string]*template.Template
	events    <-chan Event
	boards    <-chan models.Scoreboard

	teams        map[int]models.Team
	problems     []models.Problem
	acceptedSeen map[int]bool
	firstSeen    map[int]bool
	leader       int
	hasLeader    bool
	warned       map[string]bool

	out  chan models.AnalyticsMessage
	done chan struct{}
}

// NewAnalyticsGenerator 创建生成器
// events 来自路由器 (提交流 + 上游解说流), boards 是 NORMAL 记分板流
func NewAnalyticsGenerator(templates map[string]*template.Template, events <-chan Event, boards <-chan models.Scoreboard) *AnalyticsGenerator {
	return &AnalyticsGenerator{
		templates:    templates,
		events:       events,
		boards:       boards,
		teams:        make(map[int]models.Team),
		acceptedSeen: make(map[int]bool),
		firstSeen:    make(map[int]bool),
		warned:       make(map[string]bool),
		out:          make(chan models.AnalyticsMessage, 256),
		done:         make(chan struct{}),
	}
}

// Out 合并后的对外解说消息流
func (g *AnalyticsGenerator) Out() <-chan models.AnalyticsMessage {
	return g.out
}

// Stop 停止生成器
func (g *AnalyticsGenerator) Stop() {
	close(g.done)
}

// Run 主循环
func (g *AnalyticsGenerator) Run() {
	for {
		select {
		case ev, ok := <-g.events:
			if !ok {
				close(g.out)
				return
			}
			g.observeEvent(ev)

		case board, ok := <-g.boards:
			if !ok {
				close(g.out)
				return
			}
			g.observeScoreboard(board)

		case <-g.done:
			close(g.out)
			return
		}
	}
}

func (g *AnalyticsGenerator) observeEvent(ev Event) {
	switch ev.Kind {
	case EventSnapshot:
		for _, team := range ev.Snapshot.Teams {
			g.teams[team.ID] = team
		}
		g.problems = ev.Snapshot.Problems

	case EventRun:
		run := ev.Run
		if !run.Accepted {
			return
		}
		if run.FirstSolved && !g.firstSeen[run.ID] {
			g.firstSeen[run.ID] = true
			g.emitRunMessage(AnalyticsFirstToSolve, run)
		}
		if !g.acceptedSeen[run.ID] {
			g.acceptedSeen[run.ID] = true
			g.emitRunMessage(AnalyticsAcceptedRun, run)
		}

	case EventAnalytics:
		// 上游自带的解说消息直接并入输出流
		g.emit(ev.Analytics)
	}
}

func (g *AnalyticsGenerator) observeScoreboard(board models.Scoreboard) {
	if len(board.Rows) == 0 || board.Rows[0].Solved == 0 {
		return
	}
	top := board.Rows[0]
	if g.hasLeader && g.leader == top.TeamID {
		return
	}
	g.hasLeader = true
	g.leader = top.TeamID

	text, ok := g.render(AnalyticsLeadChange, analyticsContext{
		Team:    g.teamName(top.TeamID),
		Rank:    top.Rank,
		Solved:  top.Solved,
		Penalty: top.Penalty,
	})
	if !ok {
		return
	}
	teamID := top.TeamID
	g.emit(models.AnalyticsMessage{
		Time:   time.Now(),
		Kind:   AnalyticsLeadChange,
		Text:   text,
		TeamID: &teamID,
	})
}

func (g *AnalyticsGenerator) emitRunMessage(kind string, run models.Run) {
	text, ok := g.render(kind, analyticsContext{
		Team:    g.teamName(run.TeamID),
		Problem: g.problemLabel(run.ProblemIndex),
	})
	if !ok {
		return
	}
	teamID := run.TeamID
	problemIndex := run.ProblemIndex
	runID := run.ID
	g.emit(models.AnalyticsMessage{
		Time:         time.Now(),
		Kind:         kind,
		Text:         text,
		TeamID:       &teamID,
		ProblemIndex: &problemIndex,
		RunID:        &runID,
	})
}

// render 渲染模板, 模板缺失跳过该种类并只警告一次
func (g *AnalyticsGenerator) render(kind string, ctx analyticsContext) (string, bool) {
	tmpl, ok := g.templates[kind]
	if !ok {
		if !g.warned[kind] {
			g.warned[kind] = true
			logger.Errorf("[Analytics] No template for %q, skipping generation for this kind", kind)
		}
		return "", false
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		logger.Errorf("[Analytics] Template %q failed: %v", kind, err)
		return "", false
	}
	return buf.String(), true
}

func (g *AnalyticsGenerator) teamName(teamID int) string {
	if team, ok := g.teams[teamID]; ok {
		return team.Name
	}
	return "?"
}

func (g *AnalyticsGenerator) problemLabel(index int) string {
	if index >= 0 && index < len(g.problems) {
		return g.problems[index].Letter
	}
	return "?"
}

func (g *AnalyticsGenerator) emit(msg models.AnalyticsMessage) {
	select {
	case g.out <- msg:
	case <-g.done:
	}
}
