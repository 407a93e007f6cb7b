package meshing

import "github.com/valydumitru01/Burst/internal/world"

// mergeMask walks an e×e face mask and merges equal, non-air cells into
// maximal rectangles, widest first along u then grown along v. emit receives
// the rectangle origin (i, j), its size (w, h) and material. The mask is
// cleared as cells are consumed.
func mergeMask(mask []world.Material, e int, emit func(i, j, w, h int, m world.Material)) {
	for j := range e {
		for i := 0; i < e; {
			m := mask[j*e+i]
			if m == world.Air {
				i++
				continue
			}

			w := 1
			for i+w < e && mask[j*e+i+w] == m {
				w++
			}

			h := 1
		grow:
			for j+h < e {
				row := (j + h) * e
				for k := range w {
					if mask[row+i+k] != m {
						break grow
					}
				}
				h++
			}

			for dj := range h {
				row := (j + dj) * e
				for k := range w {
					mask[row+i+k] = world.Air
				}
			}

			emit(i, j, w, h, m)
			i += w
		}
	}
}
