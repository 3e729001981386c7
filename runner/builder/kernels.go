package builder

// Every kernel takes its buffers first, in binding order, followed by the
// three launch scalars (entries, groupCount, groupSize). The outer loop walks
// thread groups and the inner loop walks the threads of one group, so the
// launch shape is groupCount x groupSize; the guard keeps the trailing group
// from touching elements past entries.
var kernelBodies = map[string]string{
	AddArrayItem: `
@kernel void addArrayItem(const real_t *a,
                          const real_t *b,
                          real_t *result,
                          const int_t entries,
                          const int_t groupCount,
                          const int_t groupSize) {
	for (int_t group = 0; group < groupCount; ++group; @outer) {
		for (int_t item = 0; item < groupSize; ++item; @inner) {
			const int_t i = group * groupSize + item;
			if (i < entries) {
				result[i] = a[i] + b[i];
			}
		}
	}
}
`,
	CompareArrayItem: `
@kernel void compareArrayItem(const real_t *a,
                              const real_t *b,
                              flag_t *result,
                              const int_t entries,
                              const int_t groupCount,
                              const int_t groupSize) {
	for (int_t group = 0; group < groupCount; ++group; @outer) {
		for (int_t item = 0; item < groupSize; ++item; @inner) {
			const int_t i = group * groupSize + item;
			if (i < entries) {
				result[i] = (a[i] == b[i]) ? 1 : 0;
			}
		}
	}
}
`,
	AllTrueArray: `
@kernel void allTrueArray(const flag_t *flags,
                          flag_t *result,
                          const int_t entries,
                          const int_t groupCount,
                          const int_t groupSize) {
	for (int_t group = 0; group < groupCount; ++group; @outer) {
		for (int_t item = 0; item < groupSize; ++item; @inner) {
			if (group == 0 && item == 0) {
				flag_t all = 1;
				for (int_t i = 0; i < entries; ++i) {
					all = all && flags[i];
				}
				result[0] = all;
			}
		}
	}
}
`,
	AllTrueBlocks: `
@kernel void allTrueBlocks(const flag_t *flags,
                           flag_t *partial,
                           const int_t entries,
                           const int_t groupCount,
                           const int_t groupSize) {
	for (int_t group = 0; group < groupCount; ++group; @outer) {
		for (int_t item = 0; item < groupSize; ++item; @inner) {
			const int_t block = group * groupSize + item;
			const int_t start = block * REDUCE_CHUNK;
			if (start < entries) {
				int_t end = start + REDUCE_CHUNK;
				if (end > entries) {
					end = entries;
				}
				flag_t all = 1;
				for (int_t i = start; i < end; ++i) {
					all = all && flags[i];
				}
				partial[block] = all;
			}
		}
	}
}
`,
}
