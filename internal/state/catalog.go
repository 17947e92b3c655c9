// ABOUTME: Fixed catalogs of known agents and workflow step sequences
// ABOUTME: There is no dynamic registration; these match the backend's roster

package state

// CatalogAgent describes one entry in the fixed agent catalog.
type CatalogAgent struct {
	ID   string
	Name string
}

// Agent identifiers in the fixed catalog.
const (
	AgentRepositoryAnalyzer    = "repository_analyzer"
	AgentRequirementsExtractor = "requirements_extractor"
	AgentArchitectureDesigner  = "architecture_designer"
	AgentImplementationPlanner = "implementation_planner"
	AgentValidator             = "validator"
)

// AgentCatalog is the closed set of agents the backend can execute,
// in display order.
var AgentCatalog = []CatalogAgent{
	{ID: AgentRepositoryAnalyzer, Name: "Repository Analyzer"},
	{ID: AgentRequirementsExtractor, Name: "Requirements Extractor"},
	{ID: AgentArchitectureDesigner, Name: "Architecture Designer"},
	{ID: AgentImplementationPlanner, Name: "Implementation Planner"},
	{ID: AgentValidator, Name: "Validator"},
}

// KnownAgent reports whether id is a member of the fixed catalog.
func KnownAgent(id string) bool {
	for _, a := range AgentCatalog {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Workflow type identifiers recognized by the backend.
const (
	WorkflowFullAnalysis       = "full_analysis"
	WorkflowArchitectureOnly   = "architecture_only"
	WorkflowImplementationPlan = "implementation_plan"
	WorkflowValidationOnly     = "validation_only"
)

// WorkflowSteps maps each workflow type to its ordered step names.
var WorkflowSteps = map[string][]string{
	WorkflowFullAnalysis: {
		"repository_analysis",
		"requirements_extraction",
		"architecture_design",
		"implementation_planning",
		"validation",
	},
	WorkflowArchitectureOnly: {
		"repository_analysis",
		"requirements_extraction",
		"architecture_design",
	},
	WorkflowImplementationPlan: {
		"architecture_design",
		"implementation_planning",
	},
	WorkflowValidationOnly: {
		"validation",
	},
}

// KnownWorkflow reports whether workflowType has a registered step sequence.
func KnownWorkflow(workflowType string) bool {
	_, ok := WorkflowSteps[workflowType]
	return ok
}
