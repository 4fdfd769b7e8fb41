// Package planlang loads and evaluates plans written in a small Starlark
// dialect: a plan source declares name, version, a parameter schema built
// from the predeclared scalar type constants (bool_, int_, float_, string_,
// host_path, target_path, used without a call) and type-constructor
// functions (list_, map_, struct_, union_, optional_, default_), and a
// setup(params, system) function returning the plan's
// items. BuildPlanTree classifies each returned item by its module string
// into a core-module ResourceParams leaf or a nested-plan branch,
// recursing into nested plans with a freshly scoped id prefix.
package planlang
