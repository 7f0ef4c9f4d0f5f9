package main

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/validation"
	"nisu-recommender/pkg/registry"
)

var registryPath string

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the activity registry",
}

var registryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check activity fields and compile every input schema",
	Long: `Load the activity registry (the embedded one unless --path is given),
check that every activity has an id, task type and category, that ids and
task types are unique, that timeouts parse, that declared error codes are
BPMN codes the workers can throw and that every input schema compiles.`,
	RunE: runRegistryValidate,
}

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryValidateCmd)
	registryValidateCmd.Flags().StringVarP(&registryPath, "path", "p", "", "Registry JSON file")
}

func runRegistryValidate(cmd *cobra.Command, _ []string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if err := validateRegistry(reg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registry %s is valid: %d activities\n", reg.Version, len(reg.Activities))
	return nil
}

func validateRegistry(reg *registry.ActivityRegistry) error {
	if len(reg.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	bpmnCodes := make(map[string]bool)
	for _, code := range apperrors.BPMNErrorMapping {
		bpmnCodes[code] = true
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	validator := validation.NewValidator(reg)

	for _, activity := range reg.Activities {
		switch {
		case activity.ID == "":
			return fmt.Errorf("activity missing required field: id")
		case activity.TaskType == "":
			return fmt.Errorf("activity %s missing required field: taskType", activity.ID)
		case activity.Category == "":
			return fmt.Errorf("activity %s missing required field: category", activity.ID)
		case ids[activity.ID]:
			return fmt.Errorf("duplicate activity id: %s", activity.ID)
		case taskTypes[activity.TaskType]:
			return fmt.Errorf("duplicate task type: %s", activity.TaskType)
		}
		ids[activity.ID] = true
		taskTypes[activity.TaskType] = true

		if err := validation.ValidateActivityNaming(activity.ID); err != nil {
			return fmt.Errorf("activity %s: %w", activity.ID, err)
		}
		if _, err := activity.TimeoutDuration(); err != nil {
			return err
		}
		for _, code := range activity.ErrorCodes {
			if !bpmnCodes[code] {
				return fmt.Errorf("activity %s: unknown error code %s", activity.ID, code)
			}
		}
		if _, err := validator.ValidateJSON(activity.TaskType, "{}"); err != nil {
			return fmt.Errorf("activity %s: %w", activity.ID, err)
		}
	}
	return nil
}
