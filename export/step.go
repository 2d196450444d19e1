package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hannes/gridfinity-cutout/geometry"
)

// stepWriter numbers entities as they are emitted.
type stepWriter struct {
	w    *bufio.Writer
	next int
}

func (s *stepWriter) add(format string, args ...any) int {
	s.next++
	fmt.Fprintf(s.w, "#%d=", s.next)
	fmt.Fprintf(s.w, format, args...)
	s.w.WriteString(";\n")
	return s.next
}

func stepReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += "."
	}
	return s
}

func stepRefs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "#" + strconv.Itoa(id)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func stepString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// WriteSTEP writes an AP203 faceted boundary representation: one planar
// face per polygon, with shared vertices deduplicated.
func WriteSTEP(w io.Writer, solid *geometry.Solid, name string) error {
	if solid.IsEmpty() {
		return fmt.Errorf("write step: empty solid")
	}
	if name == "" {
		name = "part"
	}
	bw := bufio.NewWriter(w)
	bw.WriteString("ISO-10303-21;\nHEADER;\n")
	fmt.Fprintf(bw, "FILE_DESCRIPTION((%s),'2;1');\n", stepString("gridfinity container"))
	fmt.Fprintf(bw, "FILE_NAME(%s,%s,(''),(''),'gridfinity-cutout','gridfinity-cutout','');\n",
		stepString(name+".step"), stepString(time.Now().UTC().Format("2006-01-02T15:04:05")))
	bw.WriteString("FILE_SCHEMA(('CONFIG_CONTROL_DESIGN'));\nENDSEC;\nDATA;\n")

	s := &stepWriter{w: bw}
	points := map[[3]float64]int{}
	var faces []int
	for _, poly := range solid.Polygons() {
		loop := make([]int, 0, len(poly.Vertices))
		for _, v := range poly.Vertices {
			key := [3]float64{v.X, v.Y, v.Z}
			id, ok := points[key]
			if !ok {
				id = s.add("CARTESIAN_POINT('',(%s,%s,%s))", stepReal(v.X), stepReal(v.Y), stepReal(v.Z))
				points[key] = id
			}
			loop = append(loop, id)
		}
		polyLoop := s.add("POLY_LOOP('',%s)", stepRefs(loop))
		bound := s.add("FACE_OUTER_BOUND('',#%d,.T.)", polyLoop)
		faces = append(faces, s.add("FACE('',(#%d))", bound))
	}
	shell := s.add("CLOSED_SHELL('',%s)", stepRefs(faces))
	brep := s.add("FACETED_BREP(%s,#%d)", stepString(name), shell)

	origin := s.add("CARTESIAN_POINT('',(0.,0.,0.))")
	zDir := s.add("DIRECTION('',(0.,0.,1.))")
	xDir := s.add("DIRECTION('',(1.,0.,0.))")
	placement := s.add("AXIS2_PLACEMENT_3D('',#%d,#%d,#%d)", origin, zDir, xDir)

	lengthUnit := s.add("(LENGTH_UNIT()NAMED_UNIT(*)SI_UNIT(.MILLI.,.METRE.))")
	angleUnit := s.add("(NAMED_UNIT(*)PLANE_ANGLE_UNIT()SI_UNIT($,.RADIAN.))")
	solidAngle := s.add("(NAMED_UNIT(*)SI_UNIT($,.STERADIAN.)SOLID_ANGLE_UNIT())")
	uncertainty := s.add("UNCERTAINTY_MEASURE_WITH_UNIT(LENGTH_MEASURE(1.E-05),#%d,'distance_accuracy_value','')", lengthUnit)
	ctx := s.add("(GEOMETRIC_REPRESENTATION_CONTEXT(3)GLOBAL_UNCERTAINTY_ASSIGNED_CONTEXT((#%d))"+
		"GLOBAL_UNIT_ASSIGNED_CONTEXT((#%d,#%d,#%d))REPRESENTATION_CONTEXT('',''))",
		uncertainty, lengthUnit, angleUnit, solidAngle)
	rep := s.add("FACETED_BREP_SHAPE_REPRESENTATION(%s,(#%d,#%d),#%d)", stepString(name), brep, placement, ctx)

	appCtx := s.add("APPLICATION_CONTEXT('configuration controlled 3d designs of mechanical parts and assemblies')")
	s.add("APPLICATION_PROTOCOL_DEFINITION('international standard','config_control_design',1994,#%d)", appCtx)
	mechCtx := s.add("MECHANICAL_CONTEXT('',#%d,'mechanical')", appCtx)
	product := s.add("PRODUCT(%s,%s,'',(#%d))", stepString(name), stepString(name), mechCtx)
	formation := s.add("PRODUCT_DEFINITION_FORMATION('','',#%d)", product)
	designCtx := s.add("DESIGN_CONTEXT('',#%d,'design')", appCtx)
	definition := s.add("PRODUCT_DEFINITION('design','',#%d,#%d)", formation, designCtx)
	shape := s.add("PRODUCT_DEFINITION_SHAPE('','',#%d)", definition)
	s.add("SHAPE_DEFINITION_REPRESENTATION(#%d,#%d)", shape, rep)

	bw.WriteString("ENDSEC;\nEND-ISO-10303-21;\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}
