package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/speckit/sdd/internal/config"
	"github.com/speckit/sdd/internal/consult"
	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/spec"
)

// buildAdapters loads consult.providers from config and wraps each
// enabled entry as a SubprocessAdapter; "anthropic" is always added when
// ANTHROPIC_API_KEY (or --anthropic-key) is present, even with no
// explicit provider entry, since it never shells out.
func buildAdapters(anthropicKeyOverride string) []consult.Adapter {
	var providers []consult.Provider
	_ = config.UnmarshalKey("consult.providers", &providers)

	var adapters []consult.Adapter
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		adapters = append(adapters, consult.SubprocessAdapter{Provider: p})
	}

	key := anthropicKeyOverride
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key != "" {
		adapters = append(adapters, consult.NewAnthropicAdapter(key, "claude-sonnet-4-5"))
	}
	return adapters
}

func cacheFor() *consult.Cache {
	dir := config.GetString("cache.dir")
	c := consult.DefaultCache(dir)
	if ttl := config.GetInt("cache.ttl_hours"); ttl > 0 {
		c.TTL = time.Duration(ttl) * time.Hour
	}
	if maxMB := config.GetInt("cache.max_size_mb"); maxMB > 0 {
		c.MaxSizeBytes = int64(maxMB) * 1024 * 1024
	}
	return c
}

var consultCmd = &cobra.Command{
	Use:     "consult <prompt>",
	GroupID: "consult",
	Short:   "Send a prompt to the configured AI providers",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		model, _ := cmd.Flags().GetString("model")
		system, _ := cmd.Flags().GetString("system")
		skill, _ := cmd.Flags().GetString("skill")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		apiKey, _ := cmd.Flags().GetString("anthropic-key")

		adapters := buildAdapters(apiKey)
		if len(adapters) == 0 {
			return errs.New(errs.KindExternalToolNotFound, "no consultation providers are configured or enabled")
		}

		req := consult.Request{Prompt: args[0], SystemPrompt: system, Model: model}
		cache := cacheFor()
		cacheEnabled := config.GetBool("cache.enabled") && !noCache

		key := consult.CacheKey{Model: model, NormalizedPrompt: args[0], SystemPrompt: system, SkillName: skill}

		var sub consult.Subscriber
		if !jsonOutput && !quietOutput {
			sub = func(e consult.Event) {
				switch e.Kind {
				case "started":
					printEvent(ports.Progress{Tool: e.Tool, Phase: "calling", Percent: -1})
				case "failed":
					printEvent(ports.Warning{Text: fmt.Sprintf("%s failed: %s", e.Tool, e.Reason)})
				}
			}
		}

		ctx := context.Background()

		switch mode {
		case "single":
			key.Tool = adapters[0].Name()
			if cacheEnabled {
				if cached, ok := cache.Get(key); ok {
					return renderConsult(cached)
				}
			}
			resp := consult.Single(ctx, adapters[0], req, sub)
			if cacheEnabled {
				_ = cache.Put(key, resp)
			}
			return renderConsult(resp)

		case "parallel":
			multi := consult.Parallel(ctx, adapters, req, sub)
			if cacheEnabled {
				for _, r := range multi.Responses {
					rkey := key
					rkey.Tool = r.Tool
					_ = cache.Put(rkey, r)
				}
			}
			if jsonOutput {
				outputJSON(multi)
				return nil
			}
			for _, r := range multi.Responses {
				_ = renderConsult(r)
			}
			for _, r := range multi.Failures {
				printEvent(ports.Warning{Text: fmt.Sprintf("%s: %s", r.Tool, r.Error)})
			}
			if !multi.Success {
				return errs.New(errs.KindConsultationFailed, "every provider failed")
			}
			return nil

		case "fallback":
			resp := consult.WithFallback(ctx, adapters, req, sub)
			if cacheEnabled && resp.Success {
				rkey := key
				rkey.Tool = resp.Tool
				_ = cache.Put(rkey, resp)
			}
			if !resp.Success {
				return errs.Newf(errs.KindConsultationFailed, "%s: %s", resp.Tool, resp.Error)
			}
			return renderConsult(resp)

		default:
			return errs.Newf(errs.KindUserError, "unrecognized --mode %q (want single|parallel|fallback)", mode)
		}
	},
}

func renderConsult(resp consult.ToolResponse) error {
	if jsonOutput {
		outputJSON(resp)
		return nil
	}
	if !resp.Success {
		return errs.Newf(errs.KindConsultationFailed, "%s: %s", resp.Tool, resp.Error)
	}
	printEvent(ports.ResultLine{Text: resp.Text})
	return nil
}

// structuredSpecContext renders the structured content a spec-aware
// review prompts from: the whole hierarchy for plan-review, or one
// node's subtree for fidelity-review (§4.8: "structured_context_hash").
func structuredSpecContext(idx *spec.Index, nodeID string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "spec_id: %s\ntitle: %s\nstatus: %s\n\n", idx.Doc.SpecID, idx.Doc.Metadata.Title, idx.Doc.Metadata.Status)

	roots := idx.Doc.Hierarchy
	if nodeID != "" {
		n := idx.Node(nodeID)
		if n == nil {
			return "", errs.New(errs.KindNotFound, "node "+nodeID+" not found")
		}
		roots = []*spec.Node{n}
	}

	var walk func(n *spec.Node, depth int)
	walk = func(n *spec.Node, depth int) {
		fmt.Fprintf(&b, "%s- [%s] %s (%s): %s\n", strings.Repeat("  ", depth), n.Type, n.ID, n.Status, n.Title)
		if n.Description != "" {
			fmt.Fprintf(&b, "%s  %s\n", strings.Repeat("  ", depth), n.Description)
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return b.String(), nil
}

func structuredContextHash(context string) string {
	sum := sha256.Sum256([]byte(context))
	return hex.EncodeToString(sum[:])
}

// runSpecReview loads specID, builds a structured prompt (scoped to
// nodeID when given), and asks the configured providers for a review,
// falling through providers in order (§4.8) and keying the cache on the
// spec's structured_context_hash so a plan/fidelity review is only
// replayed from cache when the underlying spec content is unchanged.
func runSpecReview(cmd *cobra.Command, specID, nodeID, reviewKind, instructions string) error {
	idx, err := loadIndex(specID)
	if err != nil {
		return err
	}
	structured, err := structuredSpecContext(idx, nodeID)
	if err != nil {
		return err
	}
	contextHash := structuredContextHash(structured)

	apiKey, _ := cmd.Flags().GetString("anthropic-key")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	adapters := buildAdapters(apiKey)
	if len(adapters) == 0 {
		return errs.New(errs.KindExternalToolNotFound, "no consultation providers are configured or enabled")
	}

	prompt := instructions + "\n\n" + structured
	req := consult.Request{Prompt: prompt}
	cache := cacheFor()
	cacheEnabled := config.GetBool("cache.enabled") && !noCache

	key := consult.CacheKey{NormalizedPrompt: instructions, SkillName: reviewKind, StructuredContextHash: contextHash}

	var sub consult.Subscriber
	if !jsonOutput && !quietOutput {
		sub = func(e consult.Event) {
			switch e.Kind {
			case "started":
				printEvent(ports.Progress{Tool: e.Tool, Phase: "calling", Percent: -1})
			case "failed":
				printEvent(ports.Warning{Text: fmt.Sprintf("%s failed: %s", e.Tool, e.Reason)})
			}
		}
	}

	ctx := context.Background()
	if cacheEnabled {
		for _, a := range adapters {
			rkey := key
			rkey.Tool = a.Name()
			if cached, ok := cache.Get(rkey); ok {
				return renderConsult(cached)
			}
		}
	}

	resp := consult.WithFallback(ctx, adapters, req, sub)
	if cacheEnabled && resp.Success {
		rkey := key
		rkey.Tool = resp.Tool
		_ = cache.Put(rkey, resp)
	}
	if !resp.Success {
		return errs.Newf(errs.KindConsultationFailed, "%s: %s", resp.Tool, resp.Error)
	}
	return renderConsult(resp)
}

var planReviewCmd = &cobra.Command{
	Use:     "plan-review <spec-id>",
	GroupID: "consult",
	Short:   "Ask the configured AI providers to review a spec's plan for gaps and risks",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpecReview(cmd, args[0], "", "plan_review",
			"Review this spec's plan for missing steps, ordering risks, and unclear acceptance criteria.")
	},
}

var fidelityReviewCmd = &cobra.Command{
	Use:     "fidelity-review <spec-id> [task-id|phase-id]",
	GroupID: "consult",
	Short:   "Ask the configured AI providers whether the named node's intent is reflected in its current state",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID := ""
		if len(args) > 1 {
			nodeID = args[1]
		}
		return runSpecReview(cmd, args[0], nodeID, "fidelity_review",
			"Review whether the current status and description of this node faithfully reflect its stated intent.")
	},
}

var listReviewToolsCmd = &cobra.Command{
	Use:     "list-review-tools",
	GroupID: "consult",
	Short:   "List the AI providers available to plan-review/fidelity-review",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapters := buildAdapters("")
		if jsonOutput {
			names := make([]string, 0, len(adapters))
			for _, a := range adapters {
				names = append(names, a.Name())
			}
			outputJSON(names)
			return nil
		}
		if len(adapters) == 0 {
			printEvent(ports.ResultLine{Text: "no consultation providers are configured or enabled"})
			return nil
		}
		var rows [][]string
		for _, a := range adapters {
			rows = append(rows, []string{a.Name()})
		}
		printEvent(ports.Table{Headers: []string{"TOOL"}, Rows: rows})
		return nil
	},
}

var cacheInfoCmd = &cobra.Command{
	Use:     "cache-info",
	GroupID: "consult",
	Short:   "Report consultation cache entry count and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := cacheFor()
		stats, err := cache.Stats()
		if err != nil {
			return errs.Wrap(errs.KindIoError, err, "reading cache directory "+cache.Dir)
		}
		if jsonOutput {
			outputJSON(stats)
			return nil
		}
		printEvent(ports.ResultLine{Text: fmt.Sprintf("%d entries, %d bytes, ttl %s, dir %s",
			stats.Entries, stats.SizeBytes, cache.TTL, cache.Dir)})
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "consult",
	Short:   "Inspect or clear the consultation cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached consultation response",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := config.GetString("cache.dir")
		if dir == "" {
			return nil
		}
		if err := os.RemoveAll(dir); err != nil {
			return errs.Wrap(errs.KindIoError, err, "clearing cache directory "+dir)
		}
		printEvent(ports.ResultLine{Text: "cache cleared"})
		return nil
	},
}

func init() {
	consultCmd.Flags().String("mode", "single", "single|parallel|fallback")
	consultCmd.Flags().String("model", "", "model override")
	consultCmd.Flags().String("system", "", "system prompt")
	consultCmd.Flags().String("skill", "", "skill name recorded in the cache key")
	consultCmd.Flags().Bool("no-cache", false, "bypass the response cache for this call")
	consultCmd.Flags().String("anthropic-key", "", "override ANTHROPIC_API_KEY for the native adapter")

	planReviewCmd.Flags().Bool("no-cache", false, "bypass the response cache for this call")
	planReviewCmd.Flags().String("anthropic-key", "", "override ANTHROPIC_API_KEY for the native adapter")
	fidelityReviewCmd.Flags().Bool("no-cache", false, "bypass the response cache for this call")
	fidelityReviewCmd.Flags().String("anthropic-key", "", "override ANTHROPIC_API_KEY for the native adapter")

	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(consultCmd, cacheCmd, planReviewCmd, fidelityReviewCmd, listReviewToolsCmd, cacheInfoCmd)
}
